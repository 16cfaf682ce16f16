// Package archive keeps a local SQLite copy of fetched day views so the CLI
// can show past days when the backend is unreachable.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"daybook/internal/domain"
)

// ErrNotFound is returned when no archived view exists for a date and mode.
var ErrNotFound = errors.New("day view not archived")

// Store persists day views, one row per (date, mode).
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS day_views (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	mode TEXT NOT NULL,
	raw_text TEXT NOT NULL DEFAULT '',
	optimized_text TEXT NOT NULL DEFAULT '',
	segments TEXT NOT NULL DEFAULT '[]',
	saved_at TIMESTAMP NOT NULL,
	UNIQUE(date, mode)
);
CREATE INDEX IF NOT EXISTS idx_day_views_saved_at ON day_views(saved_at);
`

// Open initializes or connects to the archive database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDayView upserts the view for its date and mode.
func (s *Store) SaveDayView(ctx context.Context, view domain.DayView, now time.Time) error {
	segments, err := json.Marshal(view.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO day_views (date, mode, raw_text, optimized_text, segments, saved_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(date, mode) DO UPDATE SET
	raw_text = excluded.raw_text,
	optimized_text = excluded.optimized_text,
	segments = excluded.segments,
	saved_at = excluded.saved_at`,
		view.Date, string(view.Mode), view.RawText, view.OptimizedText, string(segments), now.UTC())
	if err != nil {
		return fmt.Errorf("save day view %s/%s: %w", view.Date, view.Mode, err)
	}
	return nil
}

// GetDayView returns the archived view for date in the given mode.
func (s *Store) GetDayView(ctx context.Context, date string, mode domain.TranscriptMode) (domain.DayView, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT raw_text, optimized_text, segments
FROM day_views
WHERE date = ? AND mode = ?`, date, string(mode))

	var view domain.DayView
	var segments string
	if err := row.Scan(&view.RawText, &view.OptimizedText, &segments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DayView{}, ErrNotFound
		}
		return domain.DayView{}, fmt.Errorf("load day view %s/%s: %w", date, mode, err)
	}

	if err := json.Unmarshal([]byte(segments), &view.Segments); err != nil {
		return domain.DayView{}, fmt.Errorf("decode segments for %s/%s: %w", date, mode, err)
	}
	view.Date = date
	view.Mode = mode
	view.FromCache = true
	return view, nil
}

// Dates lists all archived dates, newest first.
func (s *Store) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date FROM day_views ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list archived dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan archived date: %w", err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

// Prune deletes views saved before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM day_views WHERE saved_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned rows: %w", err)
	}
	return removed, nil
}
