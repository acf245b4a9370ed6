package telemetry

import (
	"context"
	"fmt"

	rediscommon "smartwake/common/redis"
	"smartwake/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamSink uploads readings to a Redis stream consumed by the cloud uplink
type StreamSink struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamSink creates the sink
func NewStreamSink(client *redis.Client, stream string, logger *zap.Logger) *StreamSink {
	return &StreamSink{client: client, stream: stream, logger: logger}
}

// UploadReading appends reading to the stream
func (s *StreamSink) UploadReading(ctx context.Context, reading models.SleepReading) error {
	id, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, ReadingPayload(reading))
	if err != nil {
		return fmt.Errorf("failed to upload reading %s: %w", reading.ID, err)
	}
	s.logger.Debug("Uploaded reading",
		zap.String("reading_id", reading.ID),
		zap.String("stream_id", id),
	)
	return nil
}
