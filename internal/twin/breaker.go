package twin

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerConfig report storm limits
type BreakerConfig struct {
	// Threshold reports allowed per window
	Threshold int
	// Window counting window length
	Window time.Duration
}

// DefaultBreakerConfig 10 reports per 60 seconds
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 10,
		Window:    60 * time.Second,
	}
}

// BreakerState snapshot of the breaker
type BreakerState struct {
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"message_count_in_window"`
	Tripped     bool      `json:"tripped"`
}

// CircuitBreaker drops outbound reports once Threshold is exceeded within a window.
// The trip clears when the window rolls over.
type CircuitBreaker struct {
	config BreakerConfig
	logger *zap.Logger

	mu          sync.Mutex
	windowStart time.Time
	count       int
	tripped     bool
}

// NewCircuitBreaker creates the breaker
func NewCircuitBreaker(config BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if config.Threshold <= 0 || config.Window <= 0 {
		config = DefaultBreakerConfig()
	}
	return &CircuitBreaker{config: config, logger: logger}
}

// Allow counts one report attempt at now and reports whether it may be sent
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.config.Window {
		if b.tripped {
			b.logger.Info("Twin report breaker reset",
				zap.Int("suppressed", b.count-b.config.Threshold),
			)
		}
		b.windowStart = now
		b.count = 0
		b.tripped = false
	}

	b.count++
	if b.count > b.config.Threshold {
		if !b.tripped {
			b.logger.Info("Twin report breaker tripped",
				zap.Int("threshold", b.config.Threshold),
				zap.Duration("window", b.config.Window),
			)
		}
		b.tripped = true
		return false
	}
	return true
}

// State current counters
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		WindowStart: b.windowStart,
		Count:       b.count,
		Tripped:     b.tripped,
	}
}
