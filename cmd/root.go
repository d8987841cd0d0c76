package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crateside/sleeve/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sleeve",
	Short: "Record sleeve identification and review pipeline",
	Long:  "Identifies album covers from photos with a cheap vision model first and a search-augmented model only when a cost gate passes, then generates or serves a cached review.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
