package twin

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"smartwake/internal/models"
)

// Desired property names
const (
	PropAlarmTime        = "alarm_time"
	PropWakeupWindow     = "smart_wakeup_window"
	PropAlarmEnabled     = "alarm_enabled"
	PropCaptureEnabled   = "capture_enabled"
	PropCloudEnabled     = "cloud_enabled"
	PropMonitoringActive = "monitoring_active"
)

// Reported-only property names
const (
	PropLastSync         = "last_sync"
	PropAlarmState       = "alarm_state"
	PropAlarmTriggered   = "alarm_triggered"
	PropTriggerReason    = "trigger_reason"
	PropPendingSyncCount = "pending_sync_count"
)

// DecodeDesired parses a desired patch, or a full twin document wrapped in {"desired": {...}}.
// Keys starting with '$' are twin metadata; unknown keys are ignored.
func DecodeDesired(payload []byte) (models.TwinPatch, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.TwinPatch{}, fmt.Errorf("failed to decode desired properties: %w", err)
	}

	var patch models.TwinPatch
	if desired, ok := raw["desired"].(map[string]interface{}); ok {
		raw = desired
		patch.Initial = true
	}

	for key, value := range raw {
		if strings.HasPrefix(key, "$") {
			continue
		}

		switch key {
		case PropAlarmTime:
			s, ok := value.(string)
			if !ok {
				return models.TwinPatch{}, fmt.Errorf("%s: expected string, got %T", key, value)
			}
			wake, err := models.ParseClockTime(s)
			if err != nil {
				return models.TwinPatch{}, err
			}
			patch.WakeTime = &wake

		case PropWakeupWindow:
			n, ok := value.(float64)
			if !ok || n <= 0 || n != math.Trunc(n) {
				return models.TwinPatch{}, fmt.Errorf("%s: expected positive integer, got %v", key, value)
			}
			window := int(n)
			patch.WindowMinutes = &window

		case PropAlarmEnabled, PropCaptureEnabled:
			b, err := boolValue(key, value)
			if err != nil {
				return models.TwinPatch{}, err
			}
			// alarm_enabled wins when both are present
			if _, both := raw[PropAlarmEnabled]; key == PropCaptureEnabled && both {
				continue
			}
			patch.AlarmEnabled = &b

		case PropCloudEnabled:
			b, err := boolValue(key, value)
			if err != nil {
				return models.TwinPatch{}, err
			}
			patch.CloudEnabled = &b

		case PropMonitoringActive:
			b, err := boolValue(key, value)
			if err != nil {
				return models.TwinPatch{}, err
			}
			patch.MonitoringActive = &b
		}
	}

	return patch, nil
}

func boolValue(key string, value interface{}) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected bool, got %T", key, value)
	}
	return b, nil
}
