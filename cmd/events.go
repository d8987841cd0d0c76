package main

import (
	"github.com/spf13/cobra"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "List recorded lifecycle events for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := initEventStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.ListEvents(cmd.Context(), args[0], eventsLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			cmd.Println("no events recorded")
			return nil
		}
		for _, ev := range events {
			cmd.Printf("%s  %-20s %-22s %s\n",
				ev.At.Format("2006-01-02 15:04:05"), ev.Kind, ev.State, ev.Detail)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to list")
	rootCmd.AddCommand(eventsCmd)
}
