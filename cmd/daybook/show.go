package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newShowCommand(cctx *commandContext) *cobra.Command {
	var optimized bool

	cmd := &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Show one recording's transcript and extraction candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recording id %q", args[0])
			}
			return runShow(cctx, id, optimized)
		},
	}
	cmd.Flags().BoolVar(&optimized, "optimized", false, "Show the backend's rewritten transcript")
	return cmd
}

func runShow(cctx *commandContext, id int64, optimized bool) error {
	services, err := cctx.services(newCLISink())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := services.API.FetchTranscription(ctx, id, optimized)
	if err != nil {
		return err
	}

	fmt.Printf("Recording %d\n\n", tr.RecordingID)
	if tr.Text == "" {
		fmt.Println("No transcript.")
	} else {
		fmt.Println(tr.Text)
	}
	printCandidates(os.Stdout, tr.Todos, tr.Schedules)
	return nil
}
