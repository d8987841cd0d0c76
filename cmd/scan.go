package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crateside/sleeve/internal/model"
)

var scanShowCost bool

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Identify a record cover photo and print the enriched result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		capture, err := loadCapture(args[0])
		if err != nil {
			return err
		}

		session := env.Orchestrator.Submit(ctx, capture)
		for snap := range session.Watch() {
			zap.L().Info("scan: state change", zap.String("state", string(snap.State)))
		}

		snap := session.Snapshot()
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal session")
		}
		cmd.Println(string(out))

		if scanShowCost {
			report, err := json.MarshalIndent(env.Tracker.Report(), "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal cost report")
			}
			cmd.Println(string(report))
		}

		if snap.State == model.StateIdentificationFailed {
			return eris.Errorf("identification failed: %s", snap.Failure.Reason)
		}
		return nil
	},
}

// loadCapture reads an image file into a Capture, sniffing the media type
// from contents with the extension as a fallback.
func loadCapture(path string) (model.Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Capture{}, eris.Wrapf(err, "read image %s", path)
	}
	if len(data) == 0 {
		return model.Capture{}, eris.Errorf("image %s is empty", path)
	}

	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg":
			mediaType = "image/jpeg"
		case ".png":
			mediaType = "image/png"
		case ".webp":
			mediaType = "image/webp"
		default:
			return model.Capture{}, eris.Errorf("%s does not look like an image (%s)", path, mediaType)
		}
	}

	return model.Capture{Data: data, MediaType: mediaType}, nil
}

func init() {
	scanCmd.Flags().BoolVar(&scanShowCost, "cost", false, "print the spend report after the scan")
	rootCmd.AddCommand(scanCmd)
}
