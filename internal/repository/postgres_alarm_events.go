package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// PostgresAlarmEventRepository alarm_events table
type PostgresAlarmEventRepository struct {
	db       *sql.DB
	deviceID string
	logger   *zap.Logger
}

var _ AlarmEventRepository = (*PostgresAlarmEventRepository)(nil)

// NewPostgresAlarmEventRepository creates the repository
func NewPostgresAlarmEventRepository(db *sql.DB, deviceID string, logger *zap.Logger) *PostgresAlarmEventRepository {
	return &PostgresAlarmEventRepository{db: db, deviceID: deviceID, logger: logger}
}

// Save inserts one event
func (r *PostgresAlarmEventRepository) Save(ctx context.Context, event models.AlarmEvent) error {
	query := `
		INSERT INTO alarm_events (
			id, device_id, event_type, scheduled_time, trigger_reason,
			sleep_quality, sleep_score, window_minutes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, r.deviceID, string(event.Type), event.ScheduledTime,
		nullString(string(event.Reason)), nullString(string(event.SleepQuality)), nullFloat(event.SleepScore),
		event.WindowMinutes, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alarm event: %w", err)
	}
	return nil
}

// Recent latest n events, newest first
func (r *PostgresAlarmEventRepository) Recent(ctx context.Context, n int) ([]models.AlarmEvent, error) {
	query := `
		SELECT id, event_type, scheduled_time, trigger_reason, sleep_quality,
			sleep_score, window_minutes, created_at
		FROM alarm_events
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, r.deviceID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm events: %w", err)
	}
	defer rows.Close()

	var events []models.AlarmEvent
	for rows.Next() {
		var (
			event     models.AlarmEvent
			eventType string
			reason    sql.NullString
			quality   sql.NullString
			score     sql.NullFloat64
		)
		if err := rows.Scan(&event.ID, &eventType, &event.ScheduledTime, &reason, &quality,
			&score, &event.WindowMinutes, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alarm event: %w", err)
		}
		event.Type = models.AlarmEventType(eventType)
		event.Reason = models.TriggerReason(reason.String)
		event.SleepQuality = models.Quality(quality.String)
		if score.Valid {
			s := score.Float64
			event.SleepScore = &s
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarm events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
