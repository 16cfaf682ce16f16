package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"daybook/internal/domain"
)

// cliSink renders recorder events as status lines on stderr, keeping stdout
// free for command output. Partial transcripts rewrite one line when stderr
// is a terminal and are dropped otherwise.
type cliSink struct {
	out      io.Writer
	tty      bool
	mu       sync.Mutex
	partial  bool
	terminal chan struct{}
	termOnce sync.Once
}

func newCLISink() *cliSink {
	return &cliSink{
		out:      os.Stderr,
		tty:      isTerminal(os.Stderr.Fd()),
		terminal: make(chan struct{}),
	}
}

// Terminal is closed when the session reaches an unrecoverable error state.
func (s *cliSink) Terminal() <-chan struct{} {
	return s.terminal
}

func (s *cliSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if msg := sessionReasonMessage(reason); msg != "" {
		s.statusLine(msg)
	}
	if state == domain.SessionStateError {
		s.termOnce.Do(func() { close(s.terminal) })
	}
}

func (s *cliSink) PartialTranscript(text string) {
	if !s.tty {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\r… %s", text)
	s.partial = true
}

func (s *cliSink) FinalTranscript(seg domain.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearPartialLocked()
	fmt.Fprintf(s.out, "[%s] %s\n", seg.TimeLabel, seg.Text)
}

func (s *cliSink) OptimizedTextChanged(_ string) {
	s.statusLine("Transcript rewrite updated")
}

func (s *cliSink) ExtractionChanged(todos []domain.TodoCandidate, schedules []domain.ScheduleCandidate) {
	s.statusLine(fmt.Sprintf("Extraction updated: %d todos, %d schedules", len(todos), len(schedules)))
}

func (s *cliSink) SegmentSaved(message string) {
	if message == "" {
		message = "Recording segment saved"
	}
	s.statusLine(message)
}

func (s *cliSink) ProcessingChanged(extractionPending bool, timelineLoading bool) {
	if extractionPending || timelineLoading {
		s.statusLine("Processing recording...")
	} else {
		s.statusLine("Processing finished")
	}
}

func (s *cliSink) SessionError(code domain.ErrorCode, detail string) {
	s.statusLine(errorMessage(code, detail))
}

func (s *cliSink) statusLine(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearPartialLocked()
	fmt.Fprintf(s.out, "* %s\n", msg)
}

func (s *cliSink) clearPartialLocked() {
	if s.partial {
		fmt.Fprint(s.out, "\r\033[K")
		s.partial = false
	}
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingStopped:
		return "Recording stopped"
	case domain.SessionReasonReconnectScheduled:
		return "Connection lost, reconnecting..."
	case domain.SessionReasonReconnected:
		return "Reconnected"
	case domain.SessionReasonReconnectExhausted:
		return "Could not reconnect to the backend"
	case domain.SessionReasonStreamEnded:
		return "Backend closed the stream"
	case domain.SessionReasonAwaitingPersist:
		return "Waiting for the backend to save the recording..."
	case domain.SessionReasonProcessingDone:
		return "Recording saved"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	var msg string
	switch code {
	case domain.ErrorCodeStartup:
		msg = "Startup failed"
	case domain.ErrorCodeMicPermission:
		msg = "Microphone access denied"
	case domain.ErrorCodeAudioStream:
		msg = "Audio streaming issue"
	case domain.ErrorCodeTransport:
		msg = "Connection to the backend failed"
	case domain.ErrorCodeTranscription:
		msg = "Transcription error"
	default:
		msg = "Error"
	}
	if detail != "" {
		return msg + ": " + detail
	}
	return msg
}
