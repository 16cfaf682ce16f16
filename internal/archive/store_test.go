package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"daybook/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveAndGetDayView(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)

	view := domain.DayView{
		Date:    "2024-01-15",
		Mode:    domain.ModeOriginal,
		RawText: "hello world",
		Segments: []domain.Segment{
			{RecordingID: 1, OffsetSec: 0, TimeLabel: "09:00", Text: "hello world"},
		},
	}
	if err := store.SaveDayView(ctx, view, now); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetDayView(ctx, "2024-01-15", domain.ModeOriginal)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.RawText != "hello world" || len(got.Segments) != 1 || got.Segments[0].TimeLabel != "09:00" {
		t.Fatalf("unexpected view: %+v", got)
	}
	if !got.FromCache {
		t.Fatalf("archived views must be marked as cached")
	}
}

func TestStoreUpsertReplacesExistingRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	view := domain.DayView{Date: "2024-01-15", Mode: domain.ModeOriginal, RawText: "first"}
	if err := store.SaveDayView(ctx, view, now); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	view.RawText = "second"
	if err := store.SaveDayView(ctx, view, now.Add(time.Minute)); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := store.GetDayView(ctx, "2024-01-15", domain.ModeOriginal)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.RawText != "second" {
		t.Fatalf("expected the replacement row, got %q", got.RawText)
	}
}

func TestStoreModesAreIndependent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.SaveDayView(ctx, domain.DayView{Date: "2024-01-15", Mode: domain.ModeOriginal, RawText: "raw"}, now); err != nil {
		t.Fatalf("save original failed: %v", err)
	}
	if err := store.SaveDayView(ctx, domain.DayView{Date: "2024-01-15", Mode: domain.ModeOptimized, OptimizedText: "polished"}, now); err != nil {
		t.Fatalf("save optimized failed: %v", err)
	}

	raw, err := store.GetDayView(ctx, "2024-01-15", domain.ModeOriginal)
	if err != nil || raw.RawText != "raw" {
		t.Fatalf("unexpected original view: %+v err=%v", raw, err)
	}
	opt, err := store.GetDayView(ctx, "2024-01-15", domain.ModeOptimized)
	if err != nil || opt.OptimizedText != "polished" {
		t.Fatalf("unexpected optimized view: %+v err=%v", opt, err)
	}
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	if _, err := store.GetDayView(context.Background(), "2024-02-01", domain.ModeOriginal); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePruneRemovesOldViews(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	if err := store.SaveDayView(ctx, domain.DayView{Date: "2024-01-01", Mode: domain.ModeOriginal}, old); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SaveDayView(ctx, domain.DayView{Date: "2024-01-20", Mode: domain.ModeOriginal}, recent); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	removed, err := store.Prune(ctx, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned row, got %d", removed)
	}

	if _, err := store.GetDayView(ctx, "2024-01-01", domain.ModeOriginal); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old view must be gone, got %v", err)
	}
	dates, err := store.Dates(ctx)
	if err != nil || len(dates) != 1 || dates[0] != "2024-01-20" {
		t.Fatalf("unexpected dates: %v err=%v", dates, err)
	}
}
