package twin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/telemetry"

	"go.uber.org/zap"
)

// ErrSendFailed the transport could not deliver a report
var ErrSendFailed = errors.New("twin report send failed")

// ReportResult outcome of a report attempt
type ReportResult int

const (
	// ReportIdle nothing to send
	ReportIdle ReportResult = iota
	// ReportSent delivered
	ReportSent
	// ReportSuppressed dropped by the breaker
	ReportSuppressed
	// ReportDeferred send failed; kept for the next sync tick
	ReportDeferred
)

func (r ReportResult) String() string {
	switch r {
	case ReportSent:
		return "sent"
	case ReportSuppressed:
		return "suppressed"
	case ReportDeferred:
		return "deferred"
	default:
		return "idle"
	}
}

// Transport remote twin collaborator
type Transport interface {
	SendReported(ctx context.Context, props map[string]interface{}) error
	OnDesiredChange(handler func(models.TwinPatch)) error
}

// Applier applies desired properties to local state.
// ApplyDesired returns the reported properties that actually changed.
type Applier interface {
	ApplyDesired(ctx context.Context, patch models.TwinPatch, now time.Time) map[string]interface{}
	ReportedState(ctx context.Context, now time.Time) map[string]interface{}
}

// Sync outbound reporting with coalescing and storm protection
type Sync struct {
	transport   Transport
	breaker     *CircuitBreaker
	sendTimeout time.Duration
	logger      *zap.Logger

	mu          sync.Mutex
	pending     map[string]interface{}
	initialDone bool
}

// NewSync creates the sync
func NewSync(transport Transport, breaker *CircuitBreaker, sendTimeout time.Duration, logger *zap.Logger) *Sync {
	return &Sync{
		transport:   transport,
		breaker:     breaker,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// HandleDesired applies a desired patch and acknowledges what changed.
// The first document after start is acknowledged with one full reported state instead.
func (s *Sync) HandleDesired(ctx context.Context, patch models.TwinPatch, applier Applier, now time.Time) ReportResult {
	changed := applier.ApplyDesired(ctx, patch, now)

	s.mu.Lock()
	initial := patch.Initial || !s.initialDone
	s.initialDone = true
	s.mu.Unlock()

	if initial {
		s.logger.Info("Initial twin sync", zap.Int("changed", len(changed)))
		return s.Report(ctx, applier.ReportedState(ctx, now), now)
	}
	if len(changed) == 0 {
		// echo of our own state
		return ReportIdle
	}
	return s.Report(ctx, changed, now)
}

// Report merges props into the pending report and tries to send it
func (s *Sync) Report(ctx context.Context, props map[string]interface{}, now time.Time) ReportResult {
	s.mu.Lock()
	if s.pending == nil {
		s.pending = make(map[string]interface{}, len(props))
	}
	for k, v := range props {
		s.pending[k] = v
	}
	s.mu.Unlock()

	return s.Flush(ctx, now)
}

// Flush sends the pending report, if any. Called on every sync tick.
func (s *Sync) Flush(ctx context.Context, now time.Time) ReportResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return ReportIdle
	}

	if !s.breaker.Allow(now) {
		s.logger.Info("Twin report suppressed by breaker", zap.Int("properties", len(s.pending)))
		s.pending = nil
		telemetry.TwinReportsTotal.WithLabelValues(ReportSuppressed.String()).Inc()
		return ReportSuppressed
	}

	props := make(map[string]interface{}, len(s.pending)+1)
	for k, v := range s.pending {
		props[k] = v
	}
	props[PropLastSync] = now.UTC().Format(time.RFC3339)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := s.transport.SendReported(sendCtx, props); err != nil {
		s.logger.Warn("Twin report failed, retrying next tick",
			zap.Error(fmt.Errorf("%w: %v", ErrSendFailed, err)),
		)
		telemetry.TwinReportsTotal.WithLabelValues(ReportDeferred.String()).Inc()
		return ReportDeferred
	}

	s.pending = nil
	telemetry.TwinReportsTotal.WithLabelValues(ReportSent.String()).Inc()
	s.logger.Debug("Twin report sent", zap.Int("properties", len(props)))
	return ReportSent
}

// Pending number of properties waiting to be sent
func (s *Sync) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// BreakerState breaker counters
func (s *Sync) BreakerState() BreakerState {
	return s.breaker.State()
}
