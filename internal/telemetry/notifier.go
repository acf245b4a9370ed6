package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// Alert types published on the alerts topic
const (
	AlertTriggered = "alarm_triggered"
	AlertSnoozed   = "alarm_snoozed"
	AlertDismissed = "alarm_dismissed"
)

// Publisher MQTT publish side (common/mqtt.Client)
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier actuation and telemetry feed over MQTT
type MQTTNotifier struct {
	publisher        Publisher
	alertsTopic      string
	predictionsTopic string
	qos              byte
	logger           *zap.Logger
	now              func() time.Time
}

// NewMQTTNotifier creates the notifier
func NewMQTTNotifier(publisher Publisher, alertsTopic, predictionsTopic string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		publisher:        publisher,
		alertsTopic:      alertsTopic,
		predictionsTopic: predictionsTopic,
		qos:              qos,
		logger:           logger,
		now:              time.Now,
	}
}

// NotifyTrigger wakes the user
func (n *MQTTNotifier) NotifyTrigger(ctx context.Context, reason models.TriggerReason, scheduled time.Time) error {
	return n.NotifyAlarm(ctx, AlertTriggered, map[string]interface{}{
		"reason":         string(reason),
		"scheduled_time": scheduled.Format(time.RFC3339),
	})
}

// NotifyAlarm publishes an alert of alertType with extra fields
func (n *MQTTNotifier) NotifyAlarm(_ context.Context, alertType string, fields map[string]interface{}) error {
	payload := map[string]interface{}{
		"type":      alertType,
		"timestamp": n.now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}
	return n.publishJSON(n.alertsTopic, payload)
}

// SendReport publishes one key/value telemetry report on the predictions feed
func (n *MQTTNotifier) SendReport(_ context.Context, key string, value interface{}) error {
	return n.publishJSON(n.predictionsTopic, map[string]interface{}{
		key:         value,
		"timestamp": n.now().UTC().Format(time.RFC3339),
	})
}

// PublishReading publishes a finalized reading with its source
func (n *MQTTNotifier) PublishReading(ctx context.Context, reading models.SleepReading) error {
	return n.SendReport(ctx, "prediction", ReadingPayload(reading))
}

func (n *MQTTNotifier) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.publisher.Publish(topic, n.qos, false, data); err != nil {
		n.logger.Warn("Failed to publish notification", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}

// ReadingPayload flat JSON form of a reading for feeds and streams
func ReadingPayload(r models.SleepReading) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            r.ID,
		"timestamp":     r.Timestamp.UTC().Format(time.RFC3339),
		"local_quality": string(r.LocalQuality),
		"local_score":   r.LocalScore,
		"final_quality": string(r.FinalQuality()),
		"source":        r.Source(),
		"synced":        r.Synced,
	}
	if r.Cloud != nil {
		payload["cloud_quality"] = string(r.Cloud.Quality)
		payload["cloud_confidence"] = r.Cloud.Confidence
		payload["cloud_probabilities"] = r.Cloud.Probabilities
	}
	return payload
}
