package twin

import (
	"context"
	"encoding/json"
	"fmt"

	mqttcommon "smartwake/common/mqtt"
	"smartwake/internal/models"
	"smartwake/internal/telemetry"

	"go.uber.org/zap"
)

// MQTTClient the parts of common/mqtt.Client the transport uses
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
}

// MQTTTransport desired properties arrive on one topic, reported properties leave on another
type MQTTTransport struct {
	client        MQTTClient
	desiredTopic  string
	reportedTopic string
	qos           byte
	logger        *zap.Logger
}

var _ Transport = (*MQTTTransport)(nil)

// NewMQTTTransport creates the transport
func NewMQTTTransport(client MQTTClient, desiredTopic, reportedTopic string, qos byte, logger *zap.Logger) *MQTTTransport {
	return &MQTTTransport{
		client:        client,
		desiredTopic:  desiredTopic,
		reportedTopic: reportedTopic,
		qos:           qos,
		logger:        logger,
	}
}

// SendReported publishes reported properties (retained, so the cloud sees the latest state)
func (t *MQTTTransport) SendReported(ctx context.Context, props map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal reported properties: %w", err)
	}
	if err := t.client.Publish(t.reportedTopic, t.qos, true, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// OnDesiredChange subscribes handler to decoded desired patches.
// handler runs on the MQTT client's goroutine and must not block.
func (t *MQTTTransport) OnDesiredChange(handler func(models.TwinPatch)) error {
	return t.client.Subscribe(t.desiredTopic, t.qos, func(topic string, payload []byte) error {
		patch, err := DecodeDesired(payload)
		if err != nil {
			return err
		}
		telemetry.TwinPatchesTotal.Inc()

		if patch.IsEmpty() && !patch.Initial {
			t.logger.Debug("Desired patch without known properties", zap.String("topic", topic))
			return nil
		}
		handler(patch)
		return nil
	})
}
