package voiceapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"daybook/internal/domain"
	"daybook/internal/logging"
	"daybook/internal/ports"
)

var upgrader = websocket.Upgrader{}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialSendsHandshakeAndReceivesEvents(t *testing.T) {
	t.Parallel()

	received := make(chan handshake, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hs handshake
		if err := conn.ReadJSON(&hs); err != nil {
			return
		}
		received <- hs

		_ = conn.WriteJSON(map[string]any{
			"header":  map[string]string{"name": "TranscriptionResultChanged"},
			"payload": map[string]any{"result": "hello world", "is_final": true},
		})
		_ = conn.WriteJSON(map[string]any{
			"header":  map[string]string{"name": "OptimizedTextChanged"},
			"payload": map[string]any{"text": "Hello, world."},
		})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	dialer := NewDialer(wsURL(server), logging.NewNop())
	session, err := dialer.Dial(context.Background(), ports.StreamConfig{Continuous: true})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	select {
	case hs := <-received:
		if !hs.Is24x7 {
			t.Fatalf("expected is_24x7=true in handshake")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received handshake")
	}

	var events []domain.StreamEvent
	for event := range session.Events() {
		events = append(events, event)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != domain.StreamTranscript || events[0].Text != "hello world" || !events[0].IsFinal {
		t.Fatalf("unexpected transcript event: %+v", events[0])
	}
	if events[1].Kind != domain.StreamOptimizedText || events[1].Text != "Hello, world." {
		t.Fatalf("unexpected optimized event: %+v", events[1])
	}

	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}

func TestStopSendsTerminationFrameWithTimestamps(t *testing.T) {
	t.Parallel()

	frames := make(chan stopFrame, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hs handshake
		_ = conn.ReadJSON(&hs)

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			var frame stopFrame
			if json.Unmarshal(payload, &frame) == nil && frame.Type == "stop" {
				frames <- frame
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer server.Close()

	dialer := NewDialer(wsURL(server), logging.NewNop())
	session, err := dialer.Dial(context.Background(), ports.StreamConfig{})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := session.SendAudio([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	if err := session.Stop([]float64{0, 4.5}); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(nil); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	select {
	case frame := <-frames:
		if len(frame.SegmentTimestamps) != 2 || frame.SegmentTimestamps[1] != 4.5 {
			t.Fatalf("unexpected stop frame: %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received stop frame")
	}

	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestAbnormalCloseSurfacesError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var hs handshake
		_ = conn.ReadJSON(&hs)
		// Drop the TCP connection without a close frame.
		_ = conn.UnderlyingConn().Close()
	}))
	defer server.Close()

	dialer := NewDialer(wsURL(server), logging.NewNop())
	session, err := dialer.Dial(context.Background(), ports.StreamConfig{Continuous: true})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := session.Wait(); err == nil {
		t.Fatalf("expected abnormal close error")
	}
}

func TestSendAudioAfterStopFails(t *testing.T) {
	t.Parallel()

	s := &streamSession{sendClosed: true}
	if err := s.SendAudio([]byte("x")); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestSetErrIgnoresCleanCloses(t *testing.T) {
	t.Parallel()

	s := &streamSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"})
	if s.waitErr() != nil {
		t.Fatalf("expected normal closure to be ignored")
	}

	s.setErr(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: ""})
	if s.waitErr() == nil {
		t.Fatalf("expected abnormal closure to be captured")
	}
}

func TestSetErrTreatsGoingAwayAsAbnormal(t *testing.T) {
	t.Parallel()

	s := &streamSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseGoingAway, Text: "restarting"})
	if s.waitErr() == nil {
		t.Fatalf("a going-away close must surface so continuous sessions reconnect")
	}
}

func TestSetErrIgnoresErrorsAfterLocalStop(t *testing.T) {
	t.Parallel()

	s := &streamSession{stopRequested: true}
	s.setErr(errors.New("read tcp: use of closed network connection"))
	if s.waitErr() != nil {
		t.Fatalf("expected post-stop error to be ignored")
	}
}

func TestSetErrFirstWins(t *testing.T) {
	t.Parallel()

	s := &streamSession{}
	s.setErr(errors.New("first"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}

func TestDecodeServerFrame(t *testing.T) {
	t.Parallel()

	logger := logging.NewNop()

	event, ok := decodeServerFrame([]byte(`{"header":{"name":"ExtractionChanged"},"payload":{"todos":[{"id":"t1","content":"buy milk"}],"schedules":[]}}`), logger)
	if !ok || event.Kind != domain.StreamExtraction {
		t.Fatalf("unexpected extraction decode: %+v ok=%v", event, ok)
	}
	if len(event.Todos) != 1 || event.Todos[0].Content != "buy milk" {
		t.Fatalf("unexpected todos: %+v", event.Todos)
	}

	event, ok = decodeServerFrame([]byte(`{"header":{"name":"SegmentSaved"},"payload":{"message":"cap reached"}}`), logger)
	if !ok || event.Kind != domain.StreamSegmentSaved || event.Message != "cap reached" {
		t.Fatalf("unexpected segment decode: %+v", event)
	}

	event, ok = decodeServerFrame([]byte(`{"header":{"name":"TaskFailed"},"payload":{"error":"asr down"}}`), logger)
	if !ok || event.Kind != domain.StreamTaskFailed || event.Message != "asr down" {
		t.Fatalf("unexpected failure decode: %+v", event)
	}

	if _, ok = decodeServerFrame([]byte(`{"header":{"name":"Unknown"},"payload":{}}`), logger); ok {
		t.Fatalf("expected unknown event to be dropped")
	}
	if _, ok = decodeServerFrame([]byte(`not json`), logger); ok {
		t.Fatalf("expected junk frame to be dropped")
	}
	if _, ok = decodeServerFrame([]byte(`{"header":{"name":"TranscriptionResultChanged"},"payload":{"result":"","is_final":true}}`), logger); ok {
		t.Fatalf("expected empty transcript to be dropped")
	}
}
