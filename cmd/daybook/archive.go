package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newArchiveCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage the local day-view archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newArchiveDatesCommand(cctx))
	cmd.AddCommand(newArchivePruneCommand(cctx))
	return cmd
}

func newArchiveDatesCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List archived days, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := cctx.openArchive()
			if err != nil {
				return err
			}
			defer store.Close()

			dates, err := store.Dates(context.Background())
			if err != nil {
				return err
			}
			if len(dates) == 0 {
				fmt.Println("Archive is empty.")
				return nil
			}
			for _, date := range dates {
				fmt.Println(date)
			}
			return nil
		},
	}
}

func newArchivePruneCommand(cctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived day views older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := cctx.openArchive()
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().AddDate(0, 0, -days)
			removed, err := store.Prune(context.Background(), cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d archived view(s).\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Keep views saved within this many days")
	return cmd
}
