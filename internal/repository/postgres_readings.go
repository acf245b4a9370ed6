package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// PostgresReadingRepository sleep_readings table
type PostgresReadingRepository struct {
	db       *sql.DB
	deviceID string
	logger   *zap.Logger
}

var _ ReadingRepository = (*PostgresReadingRepository)(nil)

// NewPostgresReadingRepository creates the repository
func NewPostgresReadingRepository(db *sql.DB, deviceID string, logger *zap.Logger) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db, deviceID: deviceID, logger: logger}
}

// Append inserts one reading. final_quality is a generated column.
func (r *PostgresReadingRepository) Append(ctx context.Context, reading models.SleepReading) error {
	features, err := json.Marshal(reading.Features.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	var (
		cloudQuality sql.NullString
		cloudConf    sql.NullFloat64
		// untyped nil so lib/pq sends NULL; a nil []byte goes out as '' and jsonb rejects it
		cloudProbs interface{}
	)
	if reading.Cloud != nil {
		cloudQuality = sql.NullString{String: string(reading.Cloud.Quality), Valid: true}
		cloudConf = sql.NullFloat64{Float64: reading.Cloud.Confidence, Valid: true}
		probs, err := json.Marshal(reading.Cloud.Probabilities)
		if err != nil {
			return fmt.Errorf("failed to marshal probabilities: %w", err)
		}
		cloudProbs = probs
	}

	origin := reading.Features.Origin
	if origin == "" {
		origin = models.OriginMonitor
	}

	query := `
		INSERT INTO sleep_readings (
			id, device_id, ts, origin, features,
			local_quality, local_score,
			cloud_quality, cloud_confidence, cloud_probabilities,
			synced
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		reading.ID, r.deviceID, reading.Timestamp, string(origin), features,
		string(reading.LocalQuality), reading.LocalScore,
		cloudQuality, cloudConf, cloudProbs,
		reading.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sleep reading: %w", err)
	}
	return nil
}

// Recent latest n readings, newest first
func (r *PostgresReadingRepository) Recent(ctx context.Context, n int) ([]models.SleepReading, error) {
	query := `
		SELECT id, ts, origin, features, local_quality, local_score,
			cloud_quality, cloud_confidence, cloud_probabilities, synced
		FROM sleep_readings
		WHERE device_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, r.deviceID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query sleep readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.SleepReading, 0, n)
	for rows.Next() {
		var (
			reading       models.SleepReading
			origin        string
			features      []byte
			localQuality  string
			cloudQuality  sql.NullString
			cloudConf     sql.NullFloat64
			cloudProbJSON []byte
		)
		if err := rows.Scan(
			&reading.ID, &reading.Timestamp, &origin, &features, &localQuality, &reading.LocalScore,
			&cloudQuality, &cloudConf, &cloudProbJSON, &reading.Synced,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sleep reading: %w", err)
		}

		reading.LocalQuality = models.Quality(localQuality)
		reading.Features.Origin = models.Origin(origin)
		reading.Features.Timestamp = reading.Timestamp
		if err := json.Unmarshal(features, &reading.Features.Values); err != nil {
			r.logger.Warn("Corrupt features column", zap.String("id", reading.ID), zap.Error(err))
		}

		if cloudQuality.Valid {
			cloud := &models.CloudResult{
				Quality:    models.Quality(cloudQuality.String),
				Confidence: cloudConf.Float64,
			}
			if len(cloudProbJSON) > 0 {
				if err := json.Unmarshal(cloudProbJSON, &cloud.Probabilities); err != nil {
					r.logger.Warn("Corrupt probabilities column", zap.String("id", reading.ID), zap.Error(err))
				}
			}
			reading.Cloud = cloud
		}

		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sleep readings: %w", err)
	}

	return readings, nil
}

// UpdateCloudResult stores a late cloud result and marks the reading synced
func (r *PostgresReadingRepository) UpdateCloudResult(ctx context.Context, id string, cloud models.CloudResult) error {
	probabilities, err := json.Marshal(cloud.Probabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal probabilities: %w", err)
	}

	query := `
		UPDATE sleep_readings
		SET cloud_quality = $2, cloud_confidence = $3, cloud_probabilities = $4, synced = TRUE
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(cloud.Quality), cloud.Confidence, probabilities)
	if err != nil {
		return fmt.Errorf("failed to update cloud result: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sleep reading %s: %w", id, ErrNotFound)
	}
	return nil
}
