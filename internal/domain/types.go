package domain

import "time"

// SessionState models the recorder lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRecording    SessionState = "recording"
	SessionStateReconnecting SessionState = "reconnecting"
	SessionStateStopping     SessionState = "stopping"
	SessionStateProcessing   SessionState = "processing"
	SessionStateError        SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonRecordingStopped   SessionStateReason = "recording_stopped"
	SessionReasonReconnectScheduled SessionStateReason = "reconnect_scheduled"
	SessionReasonReconnected        SessionStateReason = "reconnected"
	SessionReasonReconnectExhausted SessionStateReason = "reconnect_exhausted"
	SessionReasonSegmentSaved       SessionStateReason = "segment_saved"
	SessionReasonAwaitingPersist    SessionStateReason = "awaiting_persist"
	SessionReasonProcessingDone     SessionStateReason = "processing_done"
	SessionReasonStreamEnded        SessionStateReason = "stream_ended"
)

// ErrorCode identifies non-fatal and fatal recorder errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeMicPermission ErrorCode = "mic_permission"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTransport     ErrorCode = "transport"
	ErrorCodeTranscription ErrorCode = "transcription"
)

// StreamEventKind identifies server-pushed events on the transcribe socket.
type StreamEventKind string

const (
	StreamTranscript    StreamEventKind = "transcript"
	StreamOptimizedText StreamEventKind = "optimized_text"
	StreamExtraction    StreamEventKind = "extraction"
	StreamSegmentSaved  StreamEventKind = "segment_saved"
	StreamTaskFailed    StreamEventKind = "task_failed"
)

// StreamEvent is one decoded server frame from the transcribe socket.
// Only the fields relevant to its Kind are populated.
type StreamEvent struct {
	Kind      StreamEventKind
	Text      string
	IsFinal   bool
	Todos     []TodoCandidate
	Schedules []ScheduleCandidate
	Message   string
}

// TodoCandidate is an extracted, not-yet-linked todo suggestion.
type TodoCandidate struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ScheduleCandidate is an extracted schedule suggestion.
type ScheduleCandidate struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// Extraction groups the candidates extracted from one transcription.
type Extraction struct {
	Todos     []TodoCandidate     `json:"todos"`
	Schedules []ScheduleCandidate `json:"schedules"`
}

// ExtractionUpdate is a sparse update pushed during a live session.
// Nil fields mean "leave unchanged".
type ExtractionUpdate struct {
	OptimizedText *string
	Todos         []TodoCandidate
	Schedules     []ScheduleCandidate
}

// Segment is one transcript line with its position inside a recording.
// RecordingID 0 means the segment belongs to the live, not-yet-persisted
// session; persisted segments carry the backend-assigned id.
type Segment struct {
	RecordingID int64   `json:"recordingId"`
	OffsetSec   float64 `json:"offsetSec"`
	TimeLabel   string  `json:"timeLabel"`
	Text        string  `json:"text"`
}

// SessionSnapshot is a copy of the live recording session buffer.
type SessionSnapshot struct {
	RawText        string
	OptimizedText  string
	PartialText    string
	Segments       []Segment
	LiveTodos      []TodoCandidate
	LiveSchedules  []ScheduleCandidate
	StartedAt      time.Time
	LastFinalEndAt time.Time
}

// TranscriptMode selects between the raw and the backend-rewritten text.
type TranscriptMode string

const (
	ModeOriginal  TranscriptMode = "original"
	ModeOptimized TranscriptMode = "optimized"
)

// DayView is the merged transcript view for one calendar day.
type DayView struct {
	Date          string
	Mode          TranscriptMode
	RawText       string
	OptimizedText string
	PartialText   string
	Segments      []Segment
	Todos         []TodoCandidate
	Schedules     []ScheduleCandidate
	FromCache     bool
	IncludesLive  bool
}

// Text returns the transcript for the view's mode.
func (v DayView) Text() string {
	if v.Mode == ModeOptimized && v.OptimizedText != "" {
		return v.OptimizedText
	}
	return v.RawText
}

// RecordingRef is one row of the recordings listing.
type RecordingRef struct {
	ID              int64   `json:"id"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// PersistedRecording is a backend-owned recording on the day timeline.
type PersistedRecording struct {
	ID                int64
	StartTime         time.Time
	DurationSec       float64
	Text              string
	SegmentTimestamps []float64
}

// Transcription is the stored transcript of one recording, with whatever
// candidates the backend's extraction pipeline has attached so far.
type Transcription struct {
	RecordingID int64               `json:"recording_id"`
	Text        string              `json:"text"`
	Todos       []TodoCandidate     `json:"todos"`
	Schedules   []ScheduleCandidate `json:"schedules"`
}

// ExtractionLink associates an extracted candidate with a real todo.
type ExtractionLink struct {
	Kind   string `json:"kind"`
	ItemID string `json:"item_id"`
	TodoID int64  `json:"todo_id"`
}

// DateOf formats t as the calendar-day key used throughout the client.
func DateOf(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
