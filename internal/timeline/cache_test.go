package timeline

import (
	"testing"
	"time"

	"daybook/internal/domain"
)

func TestDayCacheModePreservation(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	cache := NewDayCache()

	cache.Put("2024-01-15", domain.ModeOriginal, "raw text", []domain.Segment{{Text: "raw text"}}, now)
	cache.Put("2024-01-15", domain.ModeOptimized, "polished text", []domain.Segment{{Text: "polished text"}}, now.Add(time.Minute))

	text, _, ok := cache.Get("2024-01-15", domain.ModeOriginal, now.Add(2*time.Minute))
	if !ok || text != "raw text" {
		t.Fatalf("original text must survive an optimized refresh, got %q ok=%v", text, ok)
	}
	text, _, ok = cache.Get("2024-01-15", domain.ModeOptimized, now.Add(2*time.Minute))
	if !ok || text != "polished text" {
		t.Fatalf("optimized text missing, got %q ok=%v", text, ok)
	}
}

func TestDayCacheMissForUnfetchedMode(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	cache := NewDayCache()
	cache.Put("2024-01-15", domain.ModeOriginal, "raw", nil, now)

	if _, _, ok := cache.Get("2024-01-15", domain.ModeOptimized, now); ok {
		t.Fatalf("a mode that was never fetched must miss")
	}
}

func TestDayCacheLazyExpiry(t *testing.T) {
	t.Parallel()

	fetched := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	cache := NewDayCache()
	cache.Put("2024-01-15", domain.ModeOriginal, "raw", nil, fetched)

	if _, _, ok := cache.Get("2024-01-15", domain.ModeOriginal, fetched.Add(6*24*time.Hour)); !ok {
		t.Fatalf("entry within retention must be served")
	}
	if _, _, ok := cache.Get("2024-01-15", domain.ModeOriginal, fetched.Add(8*24*time.Hour)); ok {
		t.Fatalf("entry past retention must not be served")
	}
	// Expiry evicts; even time moving backwards must not resurrect it.
	if _, _, ok := cache.Get("2024-01-15", domain.ModeOriginal, fetched); ok {
		t.Fatalf("expired entry must have been evicted")
	}
}

func TestDayCacheInvalidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	cache := NewDayCache()
	cache.Put("2024-01-15", domain.ModeOriginal, "raw", nil, now)
	cache.Invalidate("2024-01-15")

	if _, _, ok := cache.Get("2024-01-15", domain.ModeOriginal, now); ok {
		t.Fatalf("invalidated entry must miss")
	}
}

func TestExtractionCacheDualStores(t *testing.T) {
	t.Parallel()

	cache := NewExtractionCache()
	original := domain.Extraction{Todos: []domain.TodoCandidate{{ID: "a", Content: "raw candidate"}}}
	optimized := domain.Extraction{Todos: []domain.TodoCandidate{{ID: "b", Content: "polished candidate"}}}

	cache.Put(7, domain.ModeOriginal, original)
	if _, ok := cache.GetOptimized(7); ok {
		t.Fatalf("an original-mode fetch must not populate the optimized store")
	}

	cache.Put(7, domain.ModeOptimized, optimized)
	ex, ok := cache.GetOptimized(7)
	if !ok || ex.Todos[0].ID != "b" {
		t.Fatalf("optimized store must mirror optimized-mode fetches, got %+v", ex)
	}
	ex, ok = cache.Get(7, domain.ModeOriginal)
	if !ok || ex.Todos[0].ID != "a" {
		t.Fatalf("mode store must keep the original-mode entry, got %+v", ex)
	}

	cache.Drop(7)
	if _, ok := cache.Get(7, domain.ModeOriginal); ok {
		t.Fatalf("drop must clear the mode store")
	}
	if _, ok := cache.GetOptimized(7); ok {
		t.Fatalf("drop must clear the optimized store")
	}
}
