package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"daybook/internal/domain"
)

func newLinkCommand(cctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "link <recording-id> <candidate-id> <todo-id>",
		Short: "Link an extracted candidate to a todo",
		Long: "Associates an extraction candidate from a recording with a real todo.\n" +
			"Candidate ids come from the optimized transcript; list them with\n" +
			"'daybook show <recording-id> --optimized'.",
		Args: cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			recordingID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recording id %q", args[0])
			}
			todoID, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid todo id %q", args[2])
			}
			return runLink(cctx, recordingID, args[1], todoID, kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "todo", "Candidate kind: todo or schedule")
	return cmd
}

func runLink(cctx *commandContext, recordingID int64, itemID string, todoID int64, kind string) error {
	if kind != "todo" && kind != "schedule" {
		return fmt.Errorf("invalid kind %q: must be todo or schedule", kind)
	}

	services, err := cctx.services(newCLISink())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := services.Reconciler.LinkCandidates(ctx, recordingID, []domain.ExtractionLink{{
		Kind:   kind,
		ItemID: itemID,
		TodoID: todoID,
	}})
	if err != nil {
		return err
	}

	fmt.Printf("Linked %s candidate %s to todo %d.\n", kind, itemID, todoID)
	printCandidates(os.Stdout, tr.Todos, tr.Schedules)
	return nil
}
