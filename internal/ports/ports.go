package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"daybook/internal/domain"
)

// ErrMicPermissionDenied marks capture failures caused by missing microphone
// access. Terminal for the attempt; callers must not retry.
var ErrMicPermissionDenied = errors.New("microphone access denied")

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing PCM16LE bytes.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamConfig carries the transcribe-socket handshake parameters.
type StreamConfig struct {
	Continuous bool
	SampleRate int
	Channels   int
}

// StreamSession is an active duplex transcribe socket.
//
// Stop sends the termination frame (optionally carrying accumulated segment
// offsets) and closes the send side; it is safe to call more than once.
// Wait blocks until both loops exit and returns nil for a clean closure.
type StreamSession interface {
	SendAudio(chunk []byte) error
	Stop(segmentTimestamps []float64) error
	Events() <-chan domain.StreamEvent
	Wait() error
	Close() error
}

// StreamDialer opens transcribe sessions against the backend.
type StreamDialer interface {
	Dial(ctx context.Context, cfg StreamConfig) (StreamSession, error)
}

// TimelineAPI is the backend's persisted-audio surface.
type TimelineAPI interface {
	ListRecordings(ctx context.Context, date string) ([]domain.RecordingRef, error)
	FetchTimeline(ctx context.Context, date string, optimized bool) ([]domain.PersistedRecording, error)
	FetchTranscription(ctx context.Context, recordingID int64, optimized bool) (domain.Transcription, error)
	Link(ctx context.Context, recordingID int64, links []domain.ExtractionLink, optimized bool) (domain.Transcription, error)
}

// DayLoader produces the merged transcript view for a day.
type DayLoader interface {
	LoadDay(ctx context.Context, date string, mode domain.TranscriptMode, forceReload bool) (domain.DayView, error)
}

// LiveSession exposes the process-wide recording session buffer to readers.
type LiveSession interface {
	Snapshot() domain.SessionSnapshot
	HasLiveData() bool
	SegmentTimestamps() []float64
}

// EventSink receives recorder state and live transcript updates.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PartialTranscript(text string)
	FinalTranscript(seg domain.Segment)
	OptimizedTextChanged(text string)
	ExtractionChanged(todos []domain.TodoCandidate, schedules []domain.ScheduleCandidate)
	SegmentSaved(message string)
	ProcessingChanged(extractionPending bool, timelineLoading bool)
	SessionError(code domain.ErrorCode, detail string)
}
