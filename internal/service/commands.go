package service

import (
	"context"
	"time"

	"smartwake/internal/alarm"
	"smartwake/internal/models"
	"smartwake/internal/twin"
)

// StatusView snapshot for the status API
type StatusView struct {
	Alarm            alarm.Status         `json:"alarm"`
	CloudEnabled     bool                 `json:"cloud_enabled"`
	MonitoringActive bool                 `json:"monitoring_active"`
	PendingSyncCount int64                `json:"pending_sync_count"`
	LatestReading    *models.SleepReading `json:"latest_reading,omitempty"`
	Breaker          twin.BreakerState    `json:"twin_breaker"`
}

// Snooze silences the ringing alarm; minutes <= 0 uses the configured length
func (s *SmartWakeService) Snooze(ctx context.Context, minutes int) error {
	return s.scheduler.Submit(ctx, func(ctx context.Context, now time.Time) error {
		tr, err := s.alarm.Snooze(minutes, now)
		if err != nil {
			return err
		}
		s.handleTransition(ctx, tr)
		return nil
	})
}

// Dismiss stops the ringing alarm
func (s *SmartWakeService) Dismiss(ctx context.Context) error {
	return s.scheduler.Submit(ctx, func(ctx context.Context, now time.Time) error {
		tr, err := s.alarm.Dismiss(now)
		if err != nil {
			return err
		}
		s.handleTransition(ctx, tr)
		return nil
	})
}

// SetAlarm enables the alarm at wake with the given window (window <= 0 keeps the current one)
func (s *SmartWakeService) SetAlarm(ctx context.Context, wake models.ClockTime, windowMinutes int) error {
	return s.scheduler.Submit(ctx, func(ctx context.Context, now time.Time) error {
		enabled := true
		if tr := s.alarm.Apply(&wake, &windowMinutes, &enabled, now); tr != nil {
			s.handleTransition(ctx, tr)
		}
		return nil
	})
}

// DisableAlarm turns the alarm off
func (s *SmartWakeService) DisableAlarm(ctx context.Context) error {
	return s.scheduler.Submit(ctx, func(ctx context.Context, now time.Time) error {
		enabled := false
		if tr := s.alarm.Apply(nil, nil, &enabled, now); tr != nil {
			s.handleTransition(ctx, tr)
		}
		return nil
	})
}

// SetCloudEnabled toggles cloud sync locally and reports it
func (s *SmartWakeService) SetCloudEnabled(ctx context.Context, enabled bool) error {
	return s.scheduler.Submit(ctx, func(ctx context.Context, now time.Time) error {
		if enabled == s.engine.CloudEnabled() {
			return nil
		}
		s.setCloudEnabled(ctx, enabled)
		s.twinSync.Report(ctx, map[string]interface{}{twin.PropCloudEnabled: enabled}, now)
		s.reportPending(ctx, now)
		return nil
	})
}

// Status snapshot taken on the scheduler loop
func (s *SmartWakeService) Status(ctx context.Context) (StatusView, error) {
	var view StatusView
	err := s.scheduler.Submit(ctx, func(ctx context.Context, now time.Time) error {
		view = s.statusAt(ctx, now)
		return nil
	})
	return view, err
}

// RecentReadings newest first
func (s *SmartWakeService) RecentReadings(ctx context.Context, n int) ([]models.SleepReading, error) {
	return s.history.Recent(ctx, n)
}

// RecentAlarmEvents newest first
func (s *SmartWakeService) RecentAlarmEvents(ctx context.Context, n int) ([]models.AlarmEvent, error) {
	return s.events.Recent(ctx, n)
}

func (s *SmartWakeService) statusAt(ctx context.Context, now time.Time) StatusView {
	view := StatusView{
		Alarm:            s.alarm.Status(now),
		CloudEnabled:     s.engine.CloudEnabled(),
		MonitoringActive: s.monitoringActive,
		Breaker:          s.twinSync.BreakerState(),
	}
	if s.lastReading != nil {
		reading := *s.lastReading
		view.LatestReading = &reading
	}
	if n, err := s.engine.PendingCount(ctx); err == nil {
		view.PendingSyncCount = n
	}
	return view
}
