package repository

import (
	"context"
	"fmt"
	"sync"

	"smartwake/internal/models"
)

// MemoryReadingRepository keeps history in process memory for running without a database.
// Only the latest limit readings are retained.
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings []models.SleepReading // oldest first
	limit    int
}

var _ ReadingRepository = (*MemoryReadingRepository)(nil)

// NewMemoryReadingRepository limit <= 0 keeps everything
func NewMemoryReadingRepository(limit int) *MemoryReadingRepository {
	return &MemoryReadingRepository{limit: limit}
}

func (r *MemoryReadingRepository) Append(_ context.Context, reading models.SleepReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readings = append(r.readings, reading)
	if r.limit > 0 && len(r.readings) > r.limit {
		r.readings = append([]models.SleepReading(nil), r.readings[len(r.readings)-r.limit:]...)
	}
	return nil
}

func (r *MemoryReadingRepository) Recent(_ context.Context, n int) ([]models.SleepReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > len(r.readings) || n <= 0 {
		n = len(r.readings)
	}
	out := make([]models.SleepReading, 0, n)
	for i := len(r.readings) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.readings[i])
	}
	return out, nil
}

func (r *MemoryReadingRepository) UpdateCloudResult(_ context.Context, id string, cloud models.CloudResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.readings {
		if r.readings[i].ID == id {
			c := cloud
			r.readings[i].Cloud = &c
			r.readings[i].Synced = true
			return nil
		}
	}
	return fmt.Errorf("sleep reading %s: %w", id, ErrNotFound)
}

// MemoryAlarmEventRepository in-memory alarm log
type MemoryAlarmEventRepository struct {
	mu     sync.RWMutex
	events []models.AlarmEvent
}

var _ AlarmEventRepository = (*MemoryAlarmEventRepository)(nil)

func NewMemoryAlarmEventRepository() *MemoryAlarmEventRepository {
	return &MemoryAlarmEventRepository{}
}

func (r *MemoryAlarmEventRepository) Save(_ context.Context, event models.AlarmEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryAlarmEventRepository) Recent(_ context.Context, n int) ([]models.AlarmEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.AlarmEvent
	for i := len(r.events) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}
