package alarm

import (
	"math"
	"time"

	"smartwake/internal/models"

	"github.com/google/uuid"
)

// Status read-only view of the alarm
type Status struct {
	State                models.AlarmState    `json:"state"`
	Enabled              bool                 `json:"enabled"`
	WakeTime             string               `json:"wake_time"`
	WindowMinutes        int                  `json:"window_minutes"`
	Target               *time.Time           `json:"target,omitempty"`
	WindowStart          *time.Time           `json:"window_start,omitempty"`
	WindowEnd            *time.Time           `json:"window_end,omitempty"`
	InWindow             bool                 `json:"in_window"`
	MinutesUntilWake     *int                 `json:"minutes_until_wake,omitempty"`
	Triggered            bool                 `json:"triggered"`
	TriggerReason        models.TriggerReason `json:"trigger_reason,omitempty"`
	SnoozedUntil         *time.Time           `json:"snoozed_until,omitempty"`
	LightSleepSuppressed bool                 `json:"light_sleep_suppressed"`
}

// Status builds the view at now
func (m *Machine) Status(now time.Time) Status {
	cfg := m.Config()
	s := Status{
		State:                m.State(),
		Enabled:              cfg.Enabled,
		WakeTime:             cfg.WakeTime.String(),
		WindowMinutes:        cfg.WindowMinutes,
		Triggered:            cfg.Triggered,
		TriggerReason:        cfg.TriggerReason,
		SnoozedUntil:         cfg.SnoozedUntil,
		LightSleepSuppressed: m.lightSleepSuppressed(now),
	}
	if !cfg.Enabled {
		return s
	}

	target := m.target
	windowStart := m.windowStart
	if cfg.SnoozedUntil != nil {
		target = *cfg.SnoozedUntil
		windowStart = target
	}
	s.Target = &target
	s.WindowStart = &windowStart
	s.WindowEnd = &target
	s.InWindow = !now.Before(windowStart) && now.Before(target)

	if now.Before(target) {
		minutes := int(math.Ceil(target.Sub(now).Minutes()))
		s.MinutesUntilWake = &minutes
	}
	return s
}

// AlarmEvent alarm log row for a transition
func (t Transition) AlarmEvent() models.AlarmEvent {
	event := models.AlarmEvent{
		ID:            uuid.New().String(),
		Type:          t.Event,
		ScheduledTime: t.Target,
		Reason:        t.Reason,
		WindowMinutes: t.Config.WindowMinutes,
		CreatedAt:     t.At,
	}
	if event.ScheduledTime.IsZero() {
		event.ScheduledTime = t.At
	}
	if t.Reading != nil {
		event.SleepQuality = t.Reading.FinalQuality()
		score := t.Reading.LocalScore
		event.SleepScore = &score
	}
	return event
}
