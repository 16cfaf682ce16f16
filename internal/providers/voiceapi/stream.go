// Package voiceapi speaks the backend's duplex transcribe protocol: one JSON
// handshake frame, binary PCM16LE upstream, JSON event envelopes downstream.
package voiceapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"daybook/internal/domain"
	"daybook/internal/ports"
)

// Dialer opens transcribe sessions against a fixed socket URL.
type Dialer struct {
	wsURL  string
	logger *zap.Logger
}

func NewDialer(wsURL string, logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{wsURL: wsURL, logger: logger}
}

type handshake struct {
	Is24x7 bool `json:"is_24x7"`
}

type stopFrame struct {
	Type              string    `json:"type"`
	SegmentTimestamps []float64 `json:"segment_timestamps,omitempty"`
}

func (d *Dialer) Dial(ctx context.Context, cfg ports.StreamConfig) (ports.StreamSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect transcribe socket: %w", err)
	}

	if err := conn.WriteJSON(handshake{Is24x7: cfg.Continuous}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send transcribe handshake: %w", err)
	}

	session := &streamSession{
		conn:   conn,
		logger: d.logger,
		events: make(chan domain.StreamEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

type streamSession struct {
	conn   *websocket.Conn
	logger *zap.Logger

	events chan domain.StreamEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	stopMu         sync.RWMutex
	stopRequested  bool
	stopTimestamps []float64
	sendClosed     bool

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func (s *streamSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.stopMu.RLock()
	closed := s.sendClosed
	s.stopMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// Stop requests a clean shutdown: the writer drains queued audio, sends the
// termination frame with the accumulated segment offsets, and the server
// closes the socket once the tail is transcribed. Safe to call repeatedly.
func (s *streamSession) Stop(segmentTimestamps []float64) error {
	s.closeSendOnce.Do(func() {
		s.stopMu.Lock()
		s.stopRequested = true
		s.stopTimestamps = segmentTimestamps
		s.sendClosed = true
		close(s.audio)
		s.stopMu.Unlock()
	})
	return nil
}

func (s *streamSession) Events() <-chan domain.StreamEvent {
	return s.events
}

func (s *streamSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.Stop(nil)
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	// Only a normal closure counts as clean; 1001 and friends must surface
	// so a continuous session can reconnect.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	s.stopMu.RLock()
	stopped := s.stopRequested
	s.stopMu.RUnlock()
	if stopped {
		// Local stop tears the socket down; whatever the reader sees next is
		// not a transport failure.
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = describeCloseError(err)
	}
}

// describeCloseError converts websocket close errors into a reason a person
// can act on; other errors pass through.
func describeCloseError(err error) error {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return err
	}
	switch closeErr.Code {
	case websocket.CloseAbnormalClosure:
		return fmt.Errorf("connection lost (abnormal closure %d)", closeErr.Code)
	case websocket.CloseGoingAway:
		return fmt.Errorf("backend going away (%d)", closeErr.Code)
	case websocket.CloseNoStatusReceived:
		return fmt.Errorf("connection closed without status (%d)", closeErr.Code)
	case websocket.CloseInternalServerErr:
		return fmt.Errorf("backend error: %s (%d)", closeErr.Text, closeErr.Code)
	default:
		return fmt.Errorf("connection closed: %s (%d)", closeErr.Text, closeErr.Code)
	}
}

func (s *streamSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("send audio: %w", err))
			return
		}
	}

	s.stopMu.RLock()
	frame := stopFrame{Type: "stop", SegmentTimestamps: s.stopTimestamps}
	s.stopMu.RUnlock()

	payload, err := json.Marshal(frame)
	if err != nil {
		s.setErr(fmt.Errorf("encode stop frame: %w", err))
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.setErr(fmt.Errorf("send stop frame: %w", err))
	}
}

func (s *streamSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return
		}

		event, ok := decodeServerFrame(payload, s.logger)
		if !ok {
			continue
		}
		s.emit(event)
	}
}

func (s *streamSession) emit(event domain.StreamEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

type serverEnvelope struct {
	Header struct {
		Name string `json:"name"`
	} `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

func decodeServerFrame(payload []byte, logger *zap.Logger) (domain.StreamEvent, bool) {
	var env serverEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Debug("ignoring undecodable server frame", zap.Error(err))
		return domain.StreamEvent{}, false
	}

	switch env.Header.Name {
	case "TranscriptionResultChanged":
		var body struct {
			Result  string `json:"result"`
			IsFinal bool   `json:"is_final"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return domain.StreamEvent{}, false
		}
		if body.Result == "" {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Kind: domain.StreamTranscript, Text: body.Result, IsFinal: body.IsFinal}, true

	case "OptimizedTextChanged":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Kind: domain.StreamOptimizedText, Text: body.Text}, true

	case "ExtractionChanged":
		var body struct {
			Todos     []domain.TodoCandidate     `json:"todos"`
			Schedules []domain.ScheduleCandidate `json:"schedules"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Kind: domain.StreamExtraction, Todos: body.Todos, Schedules: body.Schedules}, true

	case "SegmentSaved":
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Payload, &body)
		return domain.StreamEvent{Kind: domain.StreamSegmentSaved, Message: body.Message}, true

	case "TaskFailed":
		var body struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(env.Payload, &body)
		return domain.StreamEvent{Kind: domain.StreamTaskFailed, Message: body.Error}, true

	default:
		logger.Debug("ignoring unknown server event", zap.String("name", env.Header.Name))
		return domain.StreamEvent{}, false
	}
}
