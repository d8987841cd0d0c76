package main

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crateside/sleeve/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the enrichment cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entry counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := initCache()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		succeeded, failed := 0, 0
		for _, e := range entries {
			if e.Status == cache.StatusSucceeded {
				succeeded++
			} else {
				failed++
			}
		}
		cmd.Printf("entries: %d (succeeded: %d, failed: %d)\n", len(entries), succeeded, failed)
		return nil
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump all cache entries as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := initCache()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

		out, err := yaml.Marshal(entries)
		if err != nil {
			return eris.Wrap(err, "marshal cache entries")
		}
		cmd.Print(string(out))
		return nil
	},
}

var cachePurgeFailuresCmd = &cobra.Command{
	Use:   "purge-failures",
	Short: "Drop recorded failures so their keys regenerate immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := initCache()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.PurgeFailures(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("purged %d failure entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheExportCmd, cachePurgeFailuresCmd)
	rootCmd.AddCommand(cacheCmd)
}
