package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"daybook/internal/audio"
	"daybook/internal/config"
	"daybook/internal/domain"
	"daybook/internal/ports"
	"daybook/internal/providers/voiceapi"
	"daybook/internal/timeline"
	"daybook/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Recorder    *usecase.Recorder
	Accumulator *usecase.Accumulator
	Reconciler  *timeline.Reconciler
	Coordinator *usecase.Coordinator
	API         *timeline.Client
	Config      config.Config
}

// Build wires all runtime dependencies against cfg.
func Build(cfg config.Config, sink ports.EventSink, logger *zap.Logger) Services {
	if logger == nil {
		logger = zap.NewNop()
	}

	acc := usecase.NewAccumulator(nil)
	api := timeline.NewClient(cfg.Backend.BaseURL, logger.Named("timeline"))
	reconciler := timeline.NewReconciler(api, acc, nil, logger.Named("reconciler"))

	recorder := usecase.NewRecorder(
		audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand),
		voiceapi.NewDialer(cfg.WebSocketURL(), logger.Named("voiceapi")),
		acc,
		sink,
		logger.Named("recorder"),
		usecase.RecorderConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize: cfg.Audio.ChunkSize,
		},
	)

	// A server-side segment boundary persists the live buffer as a new
	// recording; refresh today's view so the content reappears as history.
	recorder.SetSegmentSavedHook(func() {
		go func() {
			today := domain.DateOf(time.Now())
			if _, err := reconciler.LoadDay(context.Background(), today, domain.ModeOriginal, true); err != nil {
				logger.Warn("post-segment refresh failed", zap.Error(err))
			}
		}()
	})

	coordinator := usecase.NewCoordinator(api, reconciler, sink, logger.Named("coordinator"))

	return Services{
		Recorder:    recorder,
		Accumulator: acc,
		Reconciler:  reconciler,
		Coordinator: coordinator,
		API:         api,
		Config:      cfg,
	}
}
