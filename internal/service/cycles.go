package service

import (
	"context"
	"errors"
	"time"

	"smartwake/internal/alarm"
	"smartwake/internal/models"
	"smartwake/internal/reconciler"
	"smartwake/internal/telemetry"
	"smartwake/internal/twin"

	"go.uber.org/zap"
)

// PredictionCycle fetches features, reconciles them, feeds the alarm and ticks the alarm clock.
// The clock tick runs even when monitoring is paused or no features arrived.
func (s *SmartWakeService) PredictionCycle(ctx context.Context, now time.Time) error {
	var cycleErr error

	if s.monitoringActive {
		batch, err := s.features.Fetch(ctx)
		if err != nil {
			s.logger.Warn("Failed to fetch features", zap.Error(err))
		}

		for _, features := range batch {
			reading, err := s.engine.Reconcile(ctx, features, now)
			if err != nil {
				if errors.Is(err, models.ErrInvalidFeatures) {
					s.logger.Error("Skipping invalid feature vector", zap.Error(err))
				} else {
					s.logger.Error("Reconciliation failed", zap.Error(err))
				}
				cycleErr = err
				continue
			}

			s.lastReading = &reading
			if err := s.notifier.PublishReading(ctx, reading); err != nil {
				s.logger.Debug("Prediction not published", zap.Error(err))
			}

			if tr := s.alarm.Evaluate(&reading, now); tr != nil {
				s.handleTransition(ctx, tr)
			}
		}
	}

	if tr := s.alarm.Tick(now); tr != nil {
		s.handleTransition(ctx, tr)
	}

	s.reportPending(ctx, now)
	return cycleErr
}

// SyncCycle drains the offline queue when possible and retries pending twin reports
func (s *SmartWakeService) SyncCycle(ctx context.Context, now time.Time) error {
	drained, err := s.engine.SyncPending(ctx)
	if err != nil {
		if errors.Is(err, reconciler.ErrDrainPartial) {
			s.logger.Warn("Sync queue partially drained", zap.Int("drained", drained), zap.Error(err))
		} else {
			s.logger.Warn("Sync queue check failed", zap.Error(err))
		}
	}

	s.reportPending(ctx, now)
	s.twinSync.Flush(ctx, now)
	return nil
}

// DesiredChanged applies an inbound twin patch
func (s *SmartWakeService) DesiredChanged(ctx context.Context, patch models.TwinPatch, now time.Time) error {
	result := s.twinSync.HandleDesired(ctx, patch, s, now)
	s.logger.Debug("Desired properties handled", zap.String("report", result.String()))
	return nil
}

// ApplyDesired implements twin.Applier
func (s *SmartWakeService) ApplyDesired(ctx context.Context, patch models.TwinPatch, now time.Time) map[string]interface{} {
	changed := make(map[string]interface{})

	if patch.TouchesAlarm() {
		if tr := s.alarm.Apply(patch.WakeTime, patch.WindowMinutes, patch.AlarmEnabled, now); tr != nil {
			s.recordTransition(ctx, tr)
			for k, v := range alarmSettingsProps(tr.Config) {
				changed[k] = v
			}
			for k, v := range alarmStateProps(tr.State, tr.Config) {
				changed[k] = v
			}
		}
	}

	if patch.CloudEnabled != nil && *patch.CloudEnabled != s.engine.CloudEnabled() {
		s.setCloudEnabled(ctx, *patch.CloudEnabled)
		changed[twin.PropCloudEnabled] = *patch.CloudEnabled
	}

	if patch.MonitoringActive != nil && *patch.MonitoringActive != s.monitoringActive {
		s.monitoringActive = *patch.MonitoringActive
		s.logger.Info("Monitoring toggled", zap.Bool("active", s.monitoringActive))
		changed[twin.PropMonitoringActive] = s.monitoringActive
	}

	return changed
}

// ReportedState implements twin.Applier
func (s *SmartWakeService) ReportedState(ctx context.Context, now time.Time) map[string]interface{} {
	props := alarmSettingsProps(s.alarm.Config())
	for k, v := range alarmStateProps(s.alarm.State(), s.alarm.Config()) {
		props[k] = v
	}
	props[twin.PropCloudEnabled] = s.engine.CloudEnabled()
	props[twin.PropMonitoringActive] = s.monitoringActive
	if n, err := s.engine.PendingCount(ctx); err == nil {
		props[twin.PropPendingSyncCount] = n
		s.lastPending = n
	}
	return props
}

// handleTransition persists, actuates and reports an alarm transition
func (s *SmartWakeService) handleTransition(ctx context.Context, tr *alarm.Transition) {
	s.recordTransition(ctx, tr)

	var err error
	switch tr.Event {
	case models.EventTriggered:
		err = s.notifier.NotifyTrigger(ctx, tr.Reason, tr.Target)
	case models.EventSnoozed:
		err = s.notifier.NotifyAlarm(ctx, telemetry.AlertSnoozed, map[string]interface{}{
			"snoozed_until": tr.Target.Format(time.RFC3339),
		})
	case models.EventDismissed:
		err = s.notifier.NotifyAlarm(ctx, telemetry.AlertDismissed, map[string]interface{}{
			"next_target": tr.Target.Format(time.RFC3339),
		})
	}
	if err != nil {
		s.logger.Warn("Failed to notify alarm transition",
			zap.String("event", string(tr.Event)),
			zap.Error(err),
		)
	}

	props := alarmStateProps(tr.State, tr.Config)
	if tr.Event == models.EventSet || tr.Event == models.EventDisabled {
		for k, v := range alarmSettingsProps(tr.Config) {
			props[k] = v
		}
	}
	s.twinSync.Report(ctx, props, tr.At)
}

// recordTransition appends the alarm log row
func (s *SmartWakeService) recordTransition(ctx context.Context, tr *alarm.Transition) {
	if tr.Event == "" {
		return
	}
	if err := s.events.Save(ctx, tr.AlarmEvent()); err != nil {
		s.logger.Warn("Failed to save alarm event",
			zap.String("event", string(tr.Event)),
			zap.Error(err),
		)
	}
}

func (s *SmartWakeService) setCloudEnabled(ctx context.Context, enabled bool) {
	drained, err := s.engine.SetCloudEnabled(ctx, enabled)
	if err != nil {
		s.logger.Warn("Queue drain after enabling cloud stopped early",
			zap.Int("drained", drained),
			zap.Error(err),
		)
	}
}

// reportPending mirrors queue depth to the twin when it changed
func (s *SmartWakeService) reportPending(ctx context.Context, now time.Time) {
	n, err := s.engine.PendingCount(ctx)
	if err != nil {
		s.logger.Warn("Failed to read sync queue length", zap.Error(err))
		return
	}
	if n == s.lastPending {
		return
	}
	s.lastPending = n
	if err := s.notifier.SendReport(ctx, twin.PropPendingSyncCount, n); err != nil {
		s.logger.Debug("Pending count not published", zap.Error(err))
	}
	s.twinSync.Report(ctx, map[string]interface{}{twin.PropPendingSyncCount: n}, now)
}

func alarmSettingsProps(cfg models.AlarmConfig) map[string]interface{} {
	return map[string]interface{}{
		twin.PropAlarmEnabled:   cfg.Enabled,
		twin.PropCaptureEnabled: cfg.Enabled,
		twin.PropAlarmTime:      cfg.WakeTime.String(),
		twin.PropWakeupWindow:   cfg.WindowMinutes,
	}
}

func alarmStateProps(state models.AlarmState, cfg models.AlarmConfig) map[string]interface{} {
	return map[string]interface{}{
		twin.PropAlarmState:     string(state),
		twin.PropAlarmTriggered: cfg.Triggered,
		twin.PropTriggerReason:  string(cfg.TriggerReason),
	}
}
