package usecase

import (
	"strings"
	"sync"
	"time"

	"daybook/internal/domain"
	"daybook/internal/ports"
)

// Accumulator is the process-wide buffer of the current recording session:
// everything heard that the backend has not yet confirmed persisted. It is
// owned by the application, not by any view, so a recording continues to
// accumulate while the recording surface is torn down.
type Accumulator struct {
	clock ports.Clock

	mu            sync.Mutex
	rawText       string
	optimizedText string
	partialText   string
	segments      []domain.Segment
	liveTodos     []domain.TodoCandidate
	liveSchedules []domain.ScheduleCandidate
	startedAt     time.Time
	lastFinalEnd  time.Time

	subs []func()
}

func NewAccumulator(clock ports.Clock) *Accumulator {
	if clock == nil {
		clock = time.Now
	}
	return &Accumulator{clock: clock}
}

// Subscribe registers fn to run after every mutation. Views use this to
// re-render; they never own the data.
func (a *Accumulator) Subscribe(fn func()) {
	a.mu.Lock()
	a.subs = append(a.subs, fn)
	a.mu.Unlock()
}

// StartSession resets every session field and records the session start.
func (a *Accumulator) StartSession() {
	a.mu.Lock()
	a.resetLocked(a.clock())
	a.mu.Unlock()
	a.notify()
}

// AppendFinal commits one finalized utterance: appends it to the raw
// transcript (newline separated), records a segment at the current distance
// from session start, and clears the in-flight partial.
//
// The offset is taken from result receipt time, not from audio timestamps,
// so it only approximates true audio position. Known trade-off; the rest of
// the client (seek, labels) relies on these offsets being consistent, not
// accurate.
func (a *Accumulator) AppendFinal(text string) domain.Segment {
	text = strings.TrimSpace(text)

	a.mu.Lock()
	now := a.clock()
	if a.startedAt.IsZero() {
		a.resetLocked(now)
	}

	offset := now.Sub(a.startedAt).Seconds()
	if offset < 0 {
		offset = 0
	}
	seg := domain.Segment{
		RecordingID: 0,
		OffsetSec:   offset,
		TimeLabel:   now.Local().Format("15:04"),
		Text:        text,
	}

	if text != "" {
		if a.rawText != "" && !strings.HasSuffix(a.rawText, "\n") {
			a.rawText += "\n"
		}
		a.rawText += text
		a.segments = append(a.segments, seg)
	}
	a.lastFinalEnd = now
	a.partialText = ""
	a.mu.Unlock()

	a.notify()
	return seg
}

// SetPartial replaces the single in-flight utterance.
func (a *Accumulator) SetPartial(text string) {
	a.mu.Lock()
	a.partialText = text
	a.mu.Unlock()
	a.notify()
}

// ApplyExtraction applies a sparse update: only fields present in upd are
// replaced, each wholesale.
func (a *Accumulator) ApplyExtraction(upd domain.ExtractionUpdate) {
	a.mu.Lock()
	if upd.OptimizedText != nil {
		a.optimizedText = *upd.OptimizedText
	}
	if upd.Todos != nil {
		a.liveTodos = append([]domain.TodoCandidate(nil), upd.Todos...)
	}
	if upd.Schedules != nil {
		a.liveSchedules = append([]domain.ScheduleCandidate(nil), upd.Schedules...)
	}
	a.mu.Unlock()
	a.notify()
}

// HandleSegmentBoundary reacts to the server unilaterally persisting the
// buffered audio as a new recording: the live buffer restarts from zero and
// the timing baseline resets. The caller must refresh the day view so the
// just-persisted content reappears as history instead of vanishing.
func (a *Accumulator) HandleSegmentBoundary() {
	a.mu.Lock()
	a.resetLocked(a.clock())
	a.mu.Unlock()
	a.notify()
}

func (a *Accumulator) resetLocked(now time.Time) {
	a.rawText = ""
	a.optimizedText = ""
	a.partialText = ""
	a.segments = nil
	a.liveTodos = nil
	a.liveSchedules = nil
	a.startedAt = now
	a.lastFinalEnd = time.Time{}
}

// Snapshot copies the session buffer for readers.
func (a *Accumulator) Snapshot() domain.SessionSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.SessionSnapshot{
		RawText:        a.rawText,
		OptimizedText:  a.optimizedText,
		PartialText:    a.partialText,
		Segments:       append([]domain.Segment(nil), a.segments...),
		LiveTodos:      append([]domain.TodoCandidate(nil), a.liveTodos...),
		LiveSchedules:  append([]domain.ScheduleCandidate(nil), a.liveSchedules...),
		StartedAt:      a.startedAt,
		LastFinalEndAt: a.lastFinalEnd,
	}
}

// HasLiveData reports whether anything in the session is still unpersisted.
func (a *Accumulator) HasLiveData() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rawText != "" || a.partialText != "" || len(a.segments) > 0
}

// SegmentTimestamps returns every committed segment offset, oldest first.
// Sent with the stop frame so the backend can align its persisted timeline.
func (a *Accumulator) SegmentTimestamps() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.segments))
	for i, seg := range a.segments {
		out[i] = seg.OffsetSec
	}
	return out
}

func (a *Accumulator) notify() {
	a.mu.Lock()
	subs := append([]func(){}, a.subs...)
	a.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
