package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"daybook/internal/domain"
	"daybook/internal/ports"
)

// Post-stop persistence protocol. The initial delay gives the backend time
// to flush the final audio; the poll budget caps the wait at roughly 7.5s;
// the grace delays let the asynchronous extraction pipeline attach its
// candidates before the processing indicators clear.
const (
	stopFlushDelay  = 800 * time.Millisecond
	pollInterval    = 500 * time.Millisecond
	maxPollAttempts = 15
	successGrace    = 1500 * time.Millisecond
	timeoutGrace    = 1 * time.Second
)

// Coordinator bridges the gap between a locally stopped recording and the
// backend having durably persisted it. It polls the recordings listing until
// a new recording appears or the budget runs out, then forces a day reload.
//
// It never surfaces a hard error for a slow persist: the worst outcome is
// loading a possibly incomplete day and letting later refreshes backfill.
type Coordinator struct {
	api    ports.TimelineAPI
	loader ports.DayLoader
	sink   ports.EventSink
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewCoordinator(api ports.TimelineAPI, loader ports.DayLoader, sink ports.EventSink, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		api:    api,
		loader: loader,
		sink:   sink,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// FinalizeStop runs the persistence watch for date and returns the reloaded
// day view. Both processing flags stay raised for the whole protocol,
// including the trailing grace delay.
func (c *Coordinator) FinalizeStop(ctx context.Context, date string, mode domain.TranscriptMode) (domain.DayView, error) {
	c.sink.ProcessingChanged(true, true)
	c.sink.SessionStateChanged(domain.SessionStateProcessing, domain.SessionReasonAwaitingPersist)

	if !c.sleep(ctx, stopFlushDelay) {
		c.finish()
		return domain.DayView{}, ctx.Err()
	}

	grew := c.pollForNewRecording(ctx, date)

	view, err := c.loader.LoadDay(ctx, date, mode, true)
	if err != nil {
		c.logger.Warn("post-stop day reload failed", zap.String("date", date), zap.Error(err))
	}

	grace := timeoutGrace
	if grew {
		grace = successGrace
	}
	if !c.sleep(ctx, grace) {
		c.finish()
		return view, ctx.Err()
	}

	c.finish()
	return view, err
}

// pollForNewRecording compares each poll's recording count against the
// count seen on the first successful poll. Errors consume attempts like any
// other poll; the loop is strictly sequential.
func (c *Coordinator) pollForNewRecording(ctx context.Context, date string) bool {
	baseline := -1
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		recs, err := c.api.ListRecordings(ctx, date)
		switch {
		case err != nil:
			c.logger.Debug("recordings poll failed",
				zap.String("date", date),
				zap.Int("attempt", attempt),
				zap.Error(err))
		case baseline < 0:
			baseline = len(recs)
		case len(recs) > baseline:
			c.logger.Debug("new recording persisted",
				zap.String("date", date),
				zap.Int("attempt", attempt),
				zap.Int("count", len(recs)))
			return true
		}

		if attempt < maxPollAttempts {
			if !c.sleep(ctx, pollInterval) {
				return false
			}
		}
	}

	c.logger.Debug("recordings poll budget exhausted", zap.String("date", date))
	return false
}

func (c *Coordinator) finish() {
	c.sink.ProcessingChanged(false, false)
	c.sink.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonProcessingDone)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
