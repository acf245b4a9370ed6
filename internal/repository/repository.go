package repository

import (
	"context"
	"errors"

	"smartwake/internal/models"
)

// ErrNotFound no row matched
var ErrNotFound = errors.New("not found")

// ReadingRepository sleep reading history
type ReadingRepository interface {
	Append(ctx context.Context, reading models.SleepReading) error
	// Recent newest first
	Recent(ctx context.Context, n int) ([]models.SleepReading, error)
	UpdateCloudResult(ctx context.Context, id string, cloud models.CloudResult) error
}

// AlarmEventRepository alarm transition log
type AlarmEventRepository interface {
	Save(ctx context.Context, event models.AlarmEvent) error
	Recent(ctx context.Context, n int) ([]models.AlarmEvent, error)
}

// SyncQueue FIFO of readings awaiting cloud submission.
// Entries leave the queue only through Pop, after the caller confirmed submission.
type SyncQueue interface {
	Push(ctx context.Context, reading models.SleepReading) error
	// Peek returns nil when the queue is empty
	Peek(ctx context.Context) (*models.SleepReading, error)
	Pop(ctx context.Context) error
	Len(ctx context.Context) (int64, error)
}
