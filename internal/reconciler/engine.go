package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/predictor"
	"smartwake/internal/repository"
	"smartwake/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDrainPartial draining stopped at the first failing entry; it and the rest stay queued
var ErrDrainPartial = errors.New("queue drain stopped on first failure")

// TelemetrySink receives drained readings
type TelemetrySink interface {
	UploadReading(ctx context.Context, reading models.SleepReading) error
}

// Engine merges local and cloud predictions into one reading and owns the offline queue.
// Reconcile and drain are serialized so a drain never interleaves with an enqueue.
type Engine struct {
	local        predictor.Predictor
	cloud        predictor.Predictor
	history      repository.ReadingRepository
	queue        repository.SyncQueue
	sink         TelemetrySink
	cloudTimeout time.Duration
	drainBudget  time.Duration // wall time one drain may take; <= 0 means unbounded
	logger       *zap.Logger

	mu           sync.Mutex
	cloudEnabled bool
}

// NewEngine creates the engine
func NewEngine(
	local, cloud predictor.Predictor,
	history repository.ReadingRepository,
	queue repository.SyncQueue,
	sink TelemetrySink,
	cloudEnabled bool,
	cloudTimeout time.Duration,
	drainBudget time.Duration,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		local:        local,
		cloud:        cloud,
		history:      history,
		queue:        queue,
		sink:         sink,
		cloudEnabled: cloudEnabled,
		cloudTimeout: cloudTimeout,
		drainBudget:  drainBudget,
		logger:       logger,
	}
}

// Reconcile produces the authoritative reading for one feature vector.
// Cloud problems never fail the call; only an unusable feature vector does.
func (e *Engine) Reconcile(ctx context.Context, features models.Features, now time.Time) (models.SleepReading, error) {
	if err := features.Validate(); err != nil {
		return models.SleepReading{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. local prediction, the fallback of record
	local, err := e.local.Predict(ctx, features)
	if err != nil {
		return models.SleepReading{}, fmt.Errorf("local prediction failed: %w", err)
	}

	timestamp := features.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}
	reading := models.SleepReading{
		ID:           uuid.New().String(),
		Timestamp:    timestamp,
		Features:     features,
		LocalQuality: local.Quality,
		LocalScore:   local.Score,
	}

	// 2. cloud prediction when enabled
	if e.cloudEnabled {
		if cloud, err := e.predictCloud(ctx, features); err != nil {
			telemetry.CloudFailuresTotal.Inc()
			e.logger.Warn("Cloud prediction failed, using local result",
				zap.String("reading_id", reading.ID),
				zap.Error(err),
			)
		} else {
			reading.Cloud = cloud
			reading.Synced = true
		}
	}

	// 3. queue local-only readings for later cloud evaluation
	if reading.Cloud == nil && features.Queueable() {
		if err := e.queue.Push(ctx, reading); err != nil {
			e.logger.Error("Failed to queue reading for sync",
				zap.String("reading_id", reading.ID),
				zap.Error(err),
			)
		}
	}

	// 4. history
	if err := e.history.Append(ctx, reading); err != nil {
		e.logger.Warn("Failed to append reading to history",
			zap.String("reading_id", reading.ID),
			zap.Error(err),
		)
	}

	telemetry.ReadingsTotal.WithLabelValues(reading.Source(), string(reading.FinalQuality())).Inc()
	e.refreshPending(ctx)

	e.logger.Debug("Reading reconciled",
		zap.String("reading_id", reading.ID),
		zap.String("local_quality", string(reading.LocalQuality)),
		zap.String("final_quality", string(reading.FinalQuality())),
		zap.String("source", reading.Source()),
	)

	return reading, nil
}

// DrainQueue resubmits queued readings oldest first and returns how many were drained.
// An empty queue is a no-op.
func (e *Engine) DrainQueue(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drainLocked(ctx)
}

// SyncPending drains when cloud sync is on, something is queued and the cloud looks reachable
func (e *Engine) SyncPending(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cloudEnabled || !e.cloud.IsAvailable() {
		return 0, nil
	}
	pending, err := e.queue.Len(ctx)
	if err != nil {
		return 0, err
	}
	if pending == 0 {
		return 0, nil
	}
	return e.drainLocked(ctx)
}

// SetCloudEnabled toggles cloud sync; turning it on drains the queue immediately
func (e *Engine) SetCloudEnabled(ctx context.Context, enabled bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasEnabled := e.cloudEnabled
	e.cloudEnabled = enabled
	if wasEnabled == enabled {
		return 0, nil
	}

	e.logger.Info("Cloud sync toggled", zap.Bool("enabled", enabled))
	if !enabled {
		return 0, nil
	}
	return e.drainLocked(ctx)
}

// CloudEnabled current cloud sync flag
func (e *Engine) CloudEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloudEnabled
}

// PendingCount pending_sync_count
func (e *Engine) PendingCount(ctx context.Context) (int64, error) {
	return e.queue.Len(ctx)
}

// drainLocked stops between entries once the budget is spent; the rest waits for the next sync tick
func (e *Engine) drainLocked(ctx context.Context) (int, error) {
	drained := 0
	var deadline time.Time
	if e.drainBudget > 0 {
		deadline = time.Now().Add(e.drainBudget)
	}
	defer func() {
		if drained > 0 {
			telemetry.DrainedTotal.Add(float64(drained))
		}
		e.refreshPending(ctx)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return drained, fmt.Errorf("%w: %v", ErrDrainPartial, err)
		}
		if !deadline.IsZero() && drained > 0 && !time.Now().Before(deadline) {
			return drained, fmt.Errorf("%w: drain budget %s exhausted", ErrDrainPartial, e.drainBudget)
		}

		head, err := e.queue.Peek(ctx)
		if err != nil {
			return drained, fmt.Errorf("%w: %v", ErrDrainPartial, err)
		}
		if head == nil {
			break
		}

		cloud, err := e.predictCloud(ctx, head.Features)
		if err != nil {
			telemetry.CloudFailuresTotal.Inc()
			return drained, fmt.Errorf("%w: reading %s: %v", ErrDrainPartial, head.ID, err)
		}
		head.Cloud = cloud
		head.Synced = true

		if err := e.history.UpdateCloudResult(ctx, head.ID, *cloud); err != nil {
			// the queue entry is authoritative; history may have rotated the row out
			e.logger.Warn("Failed to update history with cloud result",
				zap.String("reading_id", head.ID),
				zap.Error(err),
			)
		}

		if err := e.sink.UploadReading(ctx, *head); err != nil {
			return drained, fmt.Errorf("%w: reading %s: %v", ErrDrainPartial, head.ID, err)
		}

		if err := e.queue.Pop(ctx); err != nil {
			return drained, fmt.Errorf("%w: %v", ErrDrainPartial, err)
		}
		drained++
	}

	if drained > 0 {
		e.logger.Info("Sync queue drained", zap.Int("drained", drained))
	}
	return drained, nil
}

func (e *Engine) predictCloud(ctx context.Context, features models.Features) (*models.CloudResult, error) {
	if !e.cloud.IsAvailable() {
		return nil, predictor.ErrUnavailable
	}

	cctx, cancel := context.WithTimeout(ctx, e.cloudTimeout)
	defer cancel()

	pred, err := e.cloud.Predict(cctx, features)
	if err != nil {
		return nil, err
	}
	return &models.CloudResult{
		Quality:       pred.Quality,
		Confidence:    pred.Confidence,
		Probabilities: pred.Probabilities,
	}, nil
}

func (e *Engine) refreshPending(ctx context.Context) {
	if n, err := e.queue.Len(ctx); err == nil {
		telemetry.PendingSyncCount.Set(float64(n))
	}
}
