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

func newRecordingsCommand(cctx *commandContext) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "List a day's persisted recordings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRecordings(cctx, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to list as YYYY-MM-DD (default today)")
	return cmd
}

func runRecordings(cctx *commandContext, date string) error {
	services, err := cctx.services(newCLISink())
	if err != nil {
		return err
	}
	if date == "" {
		date = domain.DateOf(time.Now())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := services.API.ListRecordings(ctx, date)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("No recordings for %s.\n", date)
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			formatDuration(rec.DurationSeconds),
		})
	}
	fmt.Fprintln(os.Stdout, renderTable(
		[]string{"ID", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignRight},
	))
	return nil
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}
