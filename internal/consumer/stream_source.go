package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "smartwake/common/redis"
	"smartwake/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FeatureSource supplies feature vectors for the prediction cycle
type FeatureSource interface {
	Fetch(ctx context.Context) ([]models.Features, error)
}

// StreamFeatureSource reads feature vectors published by the wearable pipeline on a Redis stream.
// Each entry carries a JSON "data" field. Entries are acknowledged once decoded: a vector that
// later fails validation is not retried. Not safe for concurrent Fetch calls.
type StreamFeatureSource struct {
	redisClient *redis.Client
	stream      string
	group       string
	consumer    string
	batchSize   int64
	logger      *zap.Logger

	groupReady bool
}

var _ FeatureSource = (*StreamFeatureSource)(nil)

// NewStreamFeatureSource creates the source
func NewStreamFeatureSource(redisClient *redis.Client, stream, group, consumer string, batchSize int, logger *zap.Logger) *StreamFeatureSource {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &StreamFeatureSource{
		redisClient: redisClient,
		stream:      stream,
		group:       group,
		consumer:    consumer,
		batchSize:   int64(batchSize),
		logger:      logger,
	}
}

// Fetch returns pending vectors oldest first without blocking
func (s *StreamFeatureSource) Fetch(ctx context.Context) ([]models.Features, error) {
	if err := s.ensureGroup(ctx); err != nil {
		return nil, err
	}

	messages, err := rediscommon.ReadFromStream(ctx, s.redisClient, s.stream, s.group, s.consumer, s.batchSize, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream %s: %w", s.stream, err)
	}

	features := make([]models.Features, 0, len(messages))
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)

		f, err := decodeFeatures(msg)
		if err != nil {
			s.logger.Warn("Dropping malformed feature message",
				zap.String("stream", s.stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		features = append(features, f)
	}

	if err := rediscommon.Ack(ctx, s.redisClient, s.stream, s.group, ids...); err != nil {
		s.logger.Warn("Failed to ack feature messages", zap.Int("count", len(ids)), zap.Error(err))
	}

	return features, nil
}

// ensureGroup creates the consumer group once; a failure is retried on the next fetch
func (s *StreamFeatureSource) ensureGroup(ctx context.Context) error {
	if s.groupReady {
		return nil
	}
	if err := rediscommon.CreateConsumerGroup(ctx, s.redisClient, s.stream, s.group); err != nil {
		return err
	}
	s.groupReady = true
	s.logger.Info("Feature stream consumer ready",
		zap.String("stream", s.stream),
		zap.String("group", s.group),
		zap.String("consumer", s.consumer),
	)
	return nil
}

func decodeFeatures(msg rediscommon.StreamMessage) (models.Features, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return models.Features{}, fmt.Errorf("missing data field")
	}

	var f models.Features
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return models.Features{}, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	if f.Origin == "" {
		f.Origin = models.OriginMonitor
	}
	return f, nil
}
