package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daybook/internal/domain"
	"daybook/internal/ports"
)

// ErrNotRecording is returned when stop is requested with no live session.
var ErrNotRecording = errors.New("no active recording session")

// Fixed reconnect policy for continuous (24/7) recording. The delay and the
// attempt budget encode backend availability assumptions; they are not
// configuration.
const (
	reconnectDelay       = 3 * time.Second
	maxReconnectAttempts = 5
)

// RecorderConfig controls capture and streaming parameters.
type RecorderConfig struct {
	Audio     ports.AudioConfig
	ChunkSize int
}

// Recorder owns the microphone-to-backend pipeline: it starts capture and
// the transcribe socket, feeds decoded server events into the Accumulator,
// and reconnects with a bounded budget when a continuous session loses its
// transport.
type Recorder struct {
	capture ports.AudioCapture
	dialer  ports.StreamDialer
	acc     *Accumulator
	sink    ports.EventSink
	logger  *zap.Logger
	cfg     RecorderConfig

	// onSegmentSaved runs after a server-initiated segment boundary has been
	// applied, so the owner can refresh the persisted day view.
	onSegmentSaved func()

	sleep func(ctx context.Context, d time.Duration, stop <-chan struct{}) bool

	mu      sync.Mutex
	current *activeSession
}

func NewRecorder(
	capture ports.AudioCapture,
	dialer ports.StreamDialer,
	acc *Accumulator,
	sink ports.EventSink,
	logger *zap.Logger,
	cfg RecorderConfig,
) *Recorder {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		capture: capture,
		dialer:  dialer,
		acc:     acc,
		sink:    sink,
		logger:  logger,
		cfg:     cfg,
		sleep:   sleepInterruptible,
	}
}

// SetSegmentSavedHook registers the refresh callback invoked after each
// server-side segment boundary. Must be called before Start.
func (r *Recorder) SetSegmentSavedHook(fn func()) {
	r.onSegmentSaved = fn
}

type activeSession struct {
	id         string
	continuous bool
	streamCfg  ports.StreamConfig

	stopRequested atomic.Bool
	stopCh        chan struct{}
	stopOnce      sync.Once
	done          chan struct{}

	mu     sync.Mutex
	audio  ports.AudioSession
	stream ports.StreamSession
}

func (a *activeSession) conns() (ports.AudioSession, ports.StreamSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audio, a.stream
}

func (a *activeSession) setConns(audio ports.AudioSession, stream ports.StreamSession) {
	a.mu.Lock()
	a.audio = audio
	a.stream = stream
	a.mu.Unlock()
}

func (a *activeSession) requestStop() bool {
	first := a.stopRequested.CompareAndSwap(false, true)
	if first {
		a.stopOnce.Do(func() { close(a.stopCh) })
	}
	return first
}

// Start begins a new capture/transcription session, discarding any session
// already in flight. Continuous mode enables the reconnect state machine.
func (r *Recorder) Start(ctx context.Context, continuous bool) error {
	var previous *activeSession
	r.mu.Lock()
	if r.current != nil {
		previous = r.current
		r.current = nil
	}
	r.mu.Unlock()
	if previous != nil {
		r.teardown(previous)
	}

	streamCfg := ports.StreamConfig{
		Continuous: continuous,
		SampleRate: r.cfg.Audio.SampleRate,
		Channels:   r.cfg.Audio.Channels,
	}
	audio, stream, err := r.connect(ctx, streamCfg)
	if err != nil {
		code := domain.ErrorCodeTransport
		if errors.Is(err, ports.ErrMicPermissionDenied) {
			code = domain.ErrorCodeMicPermission
		}
		r.sink.SessionError(code, err.Error())
		return err
	}

	active := &activeSession{
		id:         uuid.NewString(),
		continuous: continuous,
		streamCfg:  streamCfg,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	active.setConns(audio, stream)

	r.mu.Lock()
	r.current = active
	r.mu.Unlock()

	r.acc.StartSession()
	r.logger.Info("recording session started",
		zap.String("session_id", active.id),
		zap.Bool("continuous", continuous))
	r.sink.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)

	go r.supervise(ctx, active)
	return nil
}

// Stop ends the active session: it hands the accumulated segment offsets to
// the transport's termination frame and waits for the pipeline to drain.
// Stopping an idle recorder returns ErrNotRecording and has no effect.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	active := r.current
	r.mu.Unlock()
	if active == nil {
		return ErrNotRecording
	}
	if !active.requestStop() {
		return ErrNotRecording
	}

	r.sink.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonRecordingStopped)

	timestamps := r.acc.SegmentTimestamps()
	audio, stream := active.conns()
	_ = audio.Stop()
	_ = stream.Stop(timestamps)

	select {
	case <-active.done:
	case <-ctx.Done():
		_ = stream.Close()
		return ctx.Err()
	}

	r.clearCurrent(active)
	r.logger.Info("recording session stopped", zap.String("session_id", active.id))
	r.sink.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingStopped)
	return nil
}

// Recording reports whether a session is in flight.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

func (r *Recorder) connect(ctx context.Context, streamCfg ports.StreamConfig) (ports.AudioSession, ports.StreamSession, error) {
	stream, err := r.dialer.Dial(ctx, streamCfg)
	if err != nil {
		return nil, nil, err
	}
	audio, err := r.capture.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		return nil, nil, err
	}
	return audio, stream, nil
}

// supervise runs one connection at a time, restarting the pipeline after
// abnormal disconnects while the attempt budget lasts. A successful
// reconnect resets the budget.
func (r *Recorder) supervise(ctx context.Context, active *activeSession) {
	defer close(active.done)

	attempts := 0
	for {
		audio, stream := active.conns()

		eventsDone := make(chan struct{})
		audioDone := make(chan struct{})
		go r.consumeEvents(stream, eventsDone)
		go pumpAudio(audio, stream, r.cfg.ChunkSize, r.sink, active.stopRequested.Load, audioDone)

		streamErr := stream.Wait()
		<-eventsDone
		_ = audio.Stop()
		<-audioDone

		if active.stopRequested.Load() {
			return
		}
		if ctx.Err() != nil {
			r.clearCurrent(active)
			return
		}
		if streamErr == nil {
			// Server closed the socket cleanly without a local stop.
			r.logger.Info("transcribe stream ended", zap.String("session_id", active.id))
			r.clearCurrent(active)
			r.sink.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonStreamEnded)
			return
		}
		if !active.continuous {
			r.clearCurrent(active)
			r.sink.SessionError(domain.ErrorCodeTransport, streamErr.Error())
			r.sink.SessionStateChanged(domain.SessionStateError, domain.SessionReasonStreamEnded)
			return
		}

		r.logger.Warn("transcribe stream lost, reconnecting",
			zap.String("session_id", active.id), zap.Error(streamErr))

		reconnected := false
		for attempts < maxReconnectAttempts {
			attempts++
			r.sink.SessionStateChanged(domain.SessionStateReconnecting, domain.SessionReasonReconnectScheduled)
			if !r.sleep(ctx, reconnectDelay, active.stopCh) {
				r.clearCurrent(active)
				return
			}
			if active.stopRequested.Load() {
				return
			}

			newAudio, newStream, err := r.connect(ctx, active.streamCfg)
			if err != nil {
				if errors.Is(err, ports.ErrMicPermissionDenied) {
					r.clearCurrent(active)
					r.sink.SessionError(domain.ErrorCodeMicPermission, err.Error())
					r.sink.SessionStateChanged(domain.SessionStateError, domain.SessionReasonReconnectExhausted)
					return
				}
				r.logger.Warn("reconnect attempt failed",
					zap.String("session_id", active.id),
					zap.Int("attempt", attempts),
					zap.Error(err))
				continue
			}

			active.setConns(newAudio, newStream)
			attempts = 0
			reconnected = true
			r.logger.Info("transcribe stream reconnected", zap.String("session_id", active.id))
			r.sink.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonReconnected)
			break
		}

		if !reconnected {
			r.clearCurrent(active)
			r.sink.SessionError(domain.ErrorCodeTransport,
				"reconnect budget exhausted: "+streamErr.Error())
			r.sink.SessionStateChanged(domain.SessionStateError, domain.SessionReasonReconnectExhausted)
			return
		}
	}
}

func (r *Recorder) consumeEvents(stream ports.StreamSession, done chan struct{}) {
	defer close(done)

	for event := range stream.Events() {
		switch event.Kind {
		case domain.StreamTranscript:
			if event.IsFinal {
				seg := r.acc.AppendFinal(event.Text)
				r.sink.FinalTranscript(seg)
			} else {
				r.acc.SetPartial(event.Text)
				r.sink.PartialTranscript(event.Text)
			}

		case domain.StreamOptimizedText:
			text := event.Text
			r.acc.ApplyExtraction(domain.ExtractionUpdate{OptimizedText: &text})
			r.sink.OptimizedTextChanged(text)

		case domain.StreamExtraction:
			todos := event.Todos
			if todos == nil {
				todos = []domain.TodoCandidate{}
			}
			schedules := event.Schedules
			if schedules == nil {
				schedules = []domain.ScheduleCandidate{}
			}
			r.acc.ApplyExtraction(domain.ExtractionUpdate{Todos: todos, Schedules: schedules})
			r.sink.ExtractionChanged(todos, schedules)

		case domain.StreamSegmentSaved:
			r.acc.HandleSegmentBoundary()
			r.sink.SegmentSaved(event.Message)
			if r.onSegmentSaved != nil {
				r.onSegmentSaved()
			}

		case domain.StreamTaskFailed:
			r.sink.SessionError(domain.ErrorCodeTranscription, event.Message)
		}
	}
}

func (r *Recorder) teardown(active *activeSession) {
	active.requestStop()
	audio, stream := active.conns()
	_ = audio.Stop()
	_ = stream.Close()
	<-active.done
}

func (r *Recorder) clearCurrent(active *activeSession) {
	r.mu.Lock()
	if r.current == active {
		r.current = nil
	}
	r.mu.Unlock()
}

func sleepInterruptible(ctx context.Context, d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
