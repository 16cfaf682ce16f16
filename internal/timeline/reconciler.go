package timeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"daybook/internal/domain"
	"daybook/internal/ports"
)

// ErrStale marks a day load whose result arrived after the selected date
// moved on. Callers drop the result; nothing was applied or cached.
var ErrStale = errors.New("day load superseded by a newer date selection")

// Reconciler produces the transcript view for a selected day by merging the
// day cache, fresh backend fetches and, for today only, the live recording
// session buffer.
type Reconciler struct {
	api         ports.TimelineAPI
	cache       *DayCache
	extractions *ExtractionCache
	live        ports.LiveSession
	clock       ports.Clock
	logger      *zap.Logger

	gen *generation
}

func NewReconciler(api ports.TimelineAPI, live ports.LiveSession, clock ports.Clock, logger *zap.Logger) *Reconciler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		api:         api,
		cache:       NewDayCache(),
		extractions: NewExtractionCache(),
		live:        live,
		clock:       clock,
		logger:      logger,
		gen:         newGeneration(),
	}
}

// LoadDay returns the merged view for date. Issuing a load selects its date:
// any earlier in-flight load resolves to ErrStale instead of applying.
//
// With forceReload false a fresh cache entry for the requested mode is
// served without a network round trip.
func (r *Reconciler) LoadDay(ctx context.Context, date string, mode domain.TranscriptMode, forceReload bool) (domain.DayView, error) {
	token := r.gen.selectDate(date)
	now := r.clock()

	if !forceReload {
		if text, segments, ok := r.cache.Get(date, mode, now); ok {
			view := r.assembleView(date, mode, text, segments, true)
			if !view.IncludesLive {
				view.Todos, view.Schedules = r.cachedExtractions(segments, mode)
			}
			return view, nil
		}
	}

	recs, err := r.api.FetchTimeline(ctx, date, mode == domain.ModeOptimized)
	if err != nil {
		return domain.DayView{}, err
	}
	if !r.gen.current(token) {
		return domain.DayView{}, ErrStale
	}

	segments := buildSegments(recs)
	text := joinRecordingTexts(recs)
	r.cache.Put(date, mode, text, segments, r.clock())

	view := r.assembleView(date, mode, text, segments, false)
	view.Todos, view.Schedules = r.collectExtractions(ctx, recs, mode)
	if live := r.liveCandidates(date); live != nil {
		view.Todos = append([]domain.TodoCandidate(nil), live.LiveTodos...)
		view.Schedules = append([]domain.ScheduleCandidate(nil), live.LiveSchedules...)
	}
	return view, nil
}

// assembleView wraps the persisted text and segments for date, appending the
// live session when date is today.
func (r *Reconciler) assembleView(date string, mode domain.TranscriptMode, text string, segments []domain.Segment, fromCache bool) domain.DayView {
	view := domain.DayView{
		Date:      date,
		Mode:      mode,
		Segments:  segments,
		FromCache: fromCache,
	}
	if mode == domain.ModeOptimized {
		view.OptimizedText = text
	} else {
		view.RawText = text
	}

	if date != domain.DateOf(r.clock()) || r.live == nil || !r.live.HasLiveData() {
		return view
	}

	// Persisted data always precedes live data; the two are never
	// interleaved by timestamp.
	snap := r.live.Snapshot()
	view.IncludesLive = true
	view.RawText = appendText(view.RawText, snap.RawText)
	if snap.OptimizedText != "" {
		view.OptimizedText = appendText(view.OptimizedText, snap.OptimizedText)
	}
	view.PartialText = snap.PartialText
	view.Segments = append(view.Segments, snap.Segments...)
	view.Todos = append([]domain.TodoCandidate(nil), snap.LiveTodos...)
	view.Schedules = append([]domain.ScheduleCandidate(nil), snap.LiveSchedules...)
	return view
}

// collectExtractions aggregates each recording's cached or freshly fetched
// candidates. Fetch failures are logged and skipped; the day still renders.
func (r *Reconciler) collectExtractions(ctx context.Context, recs []domain.PersistedRecording, mode domain.TranscriptMode) ([]domain.TodoCandidate, []domain.ScheduleCandidate) {
	var todos []domain.TodoCandidate
	var schedules []domain.ScheduleCandidate
	for _, rec := range recs {
		ex, ok := r.extractions.Get(rec.ID, mode)
		if !ok {
			tr, err := r.api.FetchTranscription(ctx, rec.ID, mode == domain.ModeOptimized)
			if err != nil {
				r.logger.Debug("extraction fetch failed",
					zap.Int64("recording_id", rec.ID), zap.Error(err))
				continue
			}
			ex = domain.Extraction{Todos: tr.Todos, Schedules: tr.Schedules}
			r.extractions.Put(rec.ID, mode, ex)
		}
		todos = append(todos, ex.Todos...)
		schedules = append(schedules, ex.Schedules...)
	}
	return todos, schedules
}

// cachedExtractions rebuilds the day's candidates from the extraction cache
// using the recording ids carried by the cached segments. No network; ids
// whose extraction was never fetched contribute nothing.
func (r *Reconciler) cachedExtractions(segments []domain.Segment, mode domain.TranscriptMode) ([]domain.TodoCandidate, []domain.ScheduleCandidate) {
	var todos []domain.TodoCandidate
	var schedules []domain.ScheduleCandidate
	seen := make(map[int64]bool)
	for _, seg := range segments {
		if seg.RecordingID == 0 || seen[seg.RecordingID] {
			continue
		}
		seen[seg.RecordingID] = true
		if ex, ok := r.extractions.Get(seg.RecordingID, mode); ok {
			todos = append(todos, ex.Todos...)
			schedules = append(schedules, ex.Schedules...)
		}
	}
	return todos, schedules
}

func (r *Reconciler) liveCandidates(date string) *domain.SessionSnapshot {
	if r.live == nil || date != domain.DateOf(r.clock()) || !r.live.HasLiveData() {
		return nil
	}
	snap := r.live.Snapshot()
	return &snap
}

// OptimizedExtraction returns a recording's candidates in optimized mode
// regardless of the active tab. The link flow always operates on these.
func (r *Reconciler) OptimizedExtraction(ctx context.Context, recordingID int64) (domain.Extraction, error) {
	if ex, ok := r.extractions.GetOptimized(recordingID); ok {
		return ex, nil
	}
	tr, err := r.api.FetchTranscription(ctx, recordingID, true)
	if err != nil {
		return domain.Extraction{}, err
	}
	ex := domain.Extraction{Todos: tr.Todos, Schedules: tr.Schedules}
	r.extractions.PutOptimized(recordingID, ex)
	return ex, nil
}

// LinkCandidates associates extracted candidates with a real todo and
// refreshes the local caches from the confirmed server state.
func (r *Reconciler) LinkCandidates(ctx context.Context, recordingID int64, links []domain.ExtractionLink) (domain.Transcription, error) {
	tr, err := r.api.Link(ctx, recordingID, links, true)
	if err != nil {
		return domain.Transcription{}, err
	}
	r.extractions.Drop(recordingID)
	r.extractions.PutOptimized(recordingID, domain.Extraction{Todos: tr.Todos, Schedules: tr.Schedules})
	return tr, nil
}

// Invalidate drops one day from the cache so its next load re-fetches.
func (r *Reconciler) Invalidate(date string) {
	r.cache.Invalidate(date)
}

// generation implements the stale-discard rule: every fetch records the date
// it was issued for, and a result only applies while that date is still the
// selected one. A token comparison, not a lock around the fetch.
type generation struct {
	mu       sync.Mutex
	selected string
}

func newGeneration() *generation {
	return &generation{}
}

func (g *generation) selectDate(date string) string {
	g.mu.Lock()
	g.selected = date
	g.mu.Unlock()
	return date
}

func (g *generation) current(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selected == token
}

// buildSegments splits each recording's text into one segment per line.
// Per-line server timestamps are used when they match the line count;
// otherwise the recording's duration is distributed evenly across its lines.
// The fallback is an acknowledged approximation, kept consistent with the
// session buffer's receipt-time offsets.
func buildSegments(recs []domain.PersistedRecording) []domain.Segment {
	var segments []domain.Segment
	for _, rec := range recs {
		lines := splitLines(rec.Text)
		if len(lines) == 0 {
			continue
		}
		precise := len(rec.SegmentTimestamps) == len(lines)
		for i, line := range lines {
			var offset float64
			if precise {
				offset = rec.SegmentTimestamps[i]
			} else {
				offset = rec.DurationSec * float64(i) / float64(len(lines))
			}
			at := rec.StartTime.Add(time.Duration(offset * float64(time.Second)))
			segments = append(segments, domain.Segment{
				RecordingID: rec.ID,
				OffsetSec:   offset,
				TimeLabel:   at.Local().Format("15:04"),
				Text:        line,
			})
		}
	}
	return segments
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func joinRecordingTexts(recs []domain.PersistedRecording) string {
	var parts []string
	for _, rec := range recs {
		text := strings.TrimSpace(rec.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func appendText(base, extra string) string {
	if extra == "" {
		return base
	}
	if base == "" {
		return extra
	}
	return base + "\n" + extra
}
