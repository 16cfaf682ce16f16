package main

import (
	"strings"
	"testing"

	"daybook/internal/domain"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	want := []string{"record", "timeline", "recordings", "show", "link", "archive"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestPrintDayViewRendersTranscriptAndSegments(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	printDayView(&out, domain.DayView{
		Date:    "2024-01-15",
		Mode:    domain.ModeOriginal,
		RawText: "hello world\nsecond line",
		Segments: []domain.Segment{
			{RecordingID: 3, OffsetSec: 0, TimeLabel: "09:00", Text: "hello world"},
			{RecordingID: 0, OffsetSec: 5, TimeLabel: "09:00", Text: "second line"},
		},
		PartialText:  "still talk",
		IncludesLive: true,
	})

	got := out.String()
	for _, want := range []string{"2024-01-15", "[live]", "hello world", "still talk", "09:00"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "live") {
		t.Fatalf("unpersisted segments must be labeled live:\n%s", got)
	}
}

func TestPrintDayViewEmptyDay(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	printDayView(&out, domain.DayView{Date: "2024-01-15", Mode: domain.ModeOriginal})
	if !strings.Contains(out.String(), "No transcript") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestSessionReasonMessages(t *testing.T) {
	t.Parallel()

	if got := sessionReasonMessage(domain.SessionReasonReconnectScheduled); !strings.Contains(got, "reconnecting") {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := sessionReasonMessage(domain.SessionStateReason("unknown")); got != "" {
		t.Fatalf("unknown reasons must map to empty, got %q", got)
	}
}

func TestErrorMessageIncludesDetail(t *testing.T) {
	t.Parallel()

	got := errorMessage(domain.ErrorCodeMicPermission, "pulse: access denied")
	if !strings.Contains(got, "Microphone access denied") || !strings.Contains(got, "pulse") {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestArchivePruneDefaultMatchesDayRetention(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	for _, cmd := range root.Commands() {
		if cmd.Name() != "archive" {
			continue
		}
		for _, sub := range cmd.Commands() {
			if sub.Name() != "prune" {
				continue
			}
			flag := sub.Flags().Lookup("days")
			if flag == nil {
				t.Fatalf("prune must expose a --days flag")
			}
			if flag.DefValue != "7" {
				t.Fatalf("prune default must match the day cache retention, got %s", flag.DefValue)
			}
			return
		}
	}
	t.Fatalf("archive prune command not found")
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	if got := formatDuration(90); got != "1m30s" {
		t.Fatalf("unexpected duration: %q", got)
	}
}
