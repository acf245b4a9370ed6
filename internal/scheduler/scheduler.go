package scheduler

import (
	"context"
	"errors"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/telemetry"

	"go.uber.org/zap"
)

// ErrNotRunning the loop has stopped
var ErrNotRunning = errors.New("scheduler not running")

// Handler cycle callbacks. All of them run on the scheduler goroutine, one at a time.
type Handler interface {
	PredictionCycle(ctx context.Context, now time.Time) error
	SyncCycle(ctx context.Context, now time.Time) error
	DesiredChanged(ctx context.Context, patch models.TwinPatch, now time.Time) error
}

type command struct {
	fn   func(ctx context.Context, now time.Time) error
	done chan error
}

// Scheduler owns cadence and is the single writer of alarm and twin state:
// ticks, inbound twin patches and submitted commands are handled sequentially.
type Scheduler struct {
	handler            Handler
	predictionInterval time.Duration
	syncInterval       time.Duration
	logger             *zap.Logger

	inbound  chan models.TwinPatch
	commands chan command
	stopped  chan struct{}
	clock    func() time.Time
}

// New creates the scheduler. Handlers receive the current time in loc.
func New(handler Handler, predictionInterval, syncInterval time.Duration, inboundBuffer int, loc *time.Location, logger *zap.Logger) *Scheduler {
	if inboundBuffer <= 0 {
		inboundBuffer = 1
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		handler:            handler,
		predictionInterval: predictionInterval,
		syncInterval:       syncInterval,
		logger:             logger,
		inbound:            make(chan models.TwinPatch, inboundBuffer),
		commands:           make(chan command),
		stopped:            make(chan struct{}),
		clock:              func() time.Time { return time.Now().In(loc) },
	}
}

// Enqueue hands an inbound twin patch to the loop without blocking.
// Returns false when the buffer is full and the patch was dropped.
func (s *Scheduler) Enqueue(patch models.TwinPatch) bool {
	select {
	case s.inbound <- patch:
		return true
	default:
		s.logger.Warn("Inbound twin buffer full, dropping patch")
		return false
	}
}

// Submit runs fn on the loop and waits for its result
func (s *Scheduler) Submit(ctx context.Context, fn func(ctx context.Context, now time.Time) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}

	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Start has returned
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Start runs the loop until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.stopped)

	s.logger.Info("Scheduler started",
		zap.Duration("prediction_interval", s.predictionInterval),
		zap.Duration("sync_interval", s.syncInterval),
	)

	predictionTicker := time.NewTicker(s.predictionInterval)
	defer predictionTicker.Stop()
	syncTicker := time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()

	// run once immediately
	s.runPrediction(ctx)
	s.runSync(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-predictionTicker.C:
			s.runPrediction(ctx)
		case <-syncTicker.C:
			s.runSync(ctx)
		case patch := <-s.inbound:
			if err := s.handler.DesiredChanged(ctx, patch, s.clock()); err != nil {
				s.logger.Error("Failed to apply desired properties", zap.Error(err))
			}
		case cmd := <-s.commands:
			cmd.done <- cmd.fn(ctx, s.clock())
		}
	}
}

func (s *Scheduler) runPrediction(ctx context.Context) {
	start := time.Now()
	if err := s.handler.PredictionCycle(ctx, s.clock()); err != nil {
		s.logger.Error("Prediction cycle failed", zap.Error(err))
	}
	telemetry.CycleDuration.WithLabelValues("prediction").Observe(time.Since(start).Seconds())
}

func (s *Scheduler) runSync(ctx context.Context) {
	start := time.Now()
	if err := s.handler.SyncCycle(ctx, s.clock()); err != nil {
		s.logger.Warn("Sync cycle failed", zap.Error(err))
	}
	telemetry.CycleDuration.WithLabelValues("sync").Observe(time.Since(start).Seconds())
}
