package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"daybook/internal/archive"
	"daybook/internal/domain"
)

func newTimelineCommand(cctx *commandContext) *cobra.Command {
	var date string
	var optimized bool
	var force bool

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the transcript for a day",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runTimeline(cctx, date, optimized, force)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to show as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&optimized, "optimized", false, "Show the backend's rewritten transcript")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the day cache")
	return cmd
}

func runTimeline(cctx *commandContext, date string, optimized, force bool) error {
	services, err := cctx.services(newCLISink())
	if err != nil {
		return err
	}
	if date == "" {
		date = domain.DateOf(time.Now())
	}
	mode := domain.ModeOriginal
	if optimized {
		mode = domain.ModeOptimized
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	view, err := services.Reconciler.LoadDay(ctx, date, mode, force)
	if err != nil {
		if cached, ok := archivedDayView(cctx, ctx, date, mode); ok {
			fmt.Fprintf(os.Stderr, "* Backend unreachable (%v), showing archived copy\n", err)
			printDayView(os.Stdout, cached)
			return nil
		}
		return err
	}

	archiveDayView(cctx, view)
	printDayView(os.Stdout, view)
	return nil
}

// archiveDayView stores the view locally, best effort. A failed archive
// write never fails the command.
func archiveDayView(cctx *commandContext, view domain.DayView) {
	if view.Date == "" {
		return
	}
	store, err := cctx.openArchive()
	if err != nil {
		fmt.Fprintf(os.Stderr, "* Archive unavailable: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.SaveDayView(context.Background(), view, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "* Archive write failed: %v\n", err)
	}
}

func archivedDayView(cctx *commandContext, ctx context.Context, date string, mode domain.TranscriptMode) (domain.DayView, bool) {
	store, err := cctx.openArchive()
	if err != nil {
		return domain.DayView{}, false
	}
	defer store.Close()

	view, err := store.GetDayView(ctx, date, mode)
	if err != nil {
		if !errors.Is(err, archive.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "* Archive read failed: %v\n", err)
		}
		return domain.DayView{}, false
	}
	return view, true
}

func printDayView(out io.Writer, view domain.DayView) {
	header := view.Date
	if view.Mode == domain.ModeOptimized {
		header += " (optimized)"
	}
	if view.FromCache {
		header += " [cached]"
	}
	if view.IncludesLive {
		header += " [live]"
	}
	fmt.Fprintln(out, header)

	text := view.Text()
	if text == "" && view.PartialText == "" {
		fmt.Fprintln(out, "No transcript for this day.")
		return
	}
	fmt.Fprintln(out)
	if text != "" {
		fmt.Fprintln(out, text)
	}
	if view.PartialText != "" {
		fmt.Fprintf(out, "… %s\n", view.PartialText)
	}

	if len(view.Segments) > 0 {
		rows := make([][]string, 0, len(view.Segments))
		for _, seg := range view.Segments {
			id := strconv.FormatInt(seg.RecordingID, 10)
			if seg.RecordingID == 0 {
				id = "live"
			}
			rows = append(rows, []string{
				seg.TimeLabel,
				id,
				strconv.FormatFloat(seg.OffsetSec, 'f', 1, 64),
				seg.Text,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Time", "Recording", "Offset (s)", "Text"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
		))
	}

	printCandidates(out, view.Todos, view.Schedules)
}

func printCandidates(out io.Writer, todos []domain.TodoCandidate, schedules []domain.ScheduleCandidate) {
	if len(todos) > 0 {
		rows := make([][]string, 0, len(todos))
		for _, todo := range todos {
			rows = append(rows, []string{todo.ID, todo.Content})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Todo candidates:")
		fmt.Fprintln(out, renderTable([]string{"ID", "Content"}, rows, nil))
	}
	if len(schedules) > 0 {
		rows := make([][]string, 0, len(schedules))
		for _, schedule := range schedules {
			rows = append(rows, []string{schedule.ID, schedule.Content, schedule.StartTime, schedule.EndTime})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Schedule candidates:")
		fmt.Fprintln(out, renderTable([]string{"ID", "Content", "Start", "End"}, rows, nil))
	}
}
