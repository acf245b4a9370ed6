package alarm

import (
	"errors"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/telemetry"

	"go.uber.org/zap"
)

// ErrNotTriggered snooze or dismiss while the alarm is not ringing
var ErrNotTriggered = errors.New("alarm is not triggered")

// DefaultSnoozeMinutes snooze length when none is configured
const DefaultSnoozeMinutes = 9

// Transition a state change the caller must persist, actuate and report.
// Event is empty when only settings of a disabled alarm changed.
type Transition struct {
	Event   models.AlarmEventType
	State   models.AlarmState
	Reason  models.TriggerReason
	Target  time.Time
	Config  models.AlarmConfig
	Reading *models.SleepReading
	At      time.Time
}

// Machine the alarm state machine.
// Not safe for concurrent use: the scheduler loop is its only caller.
type Machine struct {
	cfg           models.AlarmConfig
	snoozeMinutes int
	logger        *zap.Logger

	target      time.Time // effective wake instant
	windowStart time.Time
	// light-sleep triggering is off until this instant after a dismiss
	suppressedUntil time.Time
}

// NewMachine creates the machine and arms it when cfg is enabled
func NewMachine(cfg models.AlarmConfig, snoozeMinutes int, now time.Time, logger *zap.Logger) *Machine {
	if snoozeMinutes <= 0 {
		snoozeMinutes = DefaultSnoozeMinutes
	}
	m := &Machine{
		cfg:           cfg,
		snoozeMinutes: snoozeMinutes,
		logger:        logger,
	}
	m.cfg.Triggered = false
	m.cfg.TriggerReason = models.ReasonNone
	m.cfg.SnoozedUntil = nil
	if m.cfg.Enabled {
		m.arm(now, true)
	}
	return m
}

// State current lifecycle state
func (m *Machine) State() models.AlarmState {
	switch {
	case !m.cfg.Enabled:
		return models.AlarmDisabled
	case m.cfg.Triggered:
		return models.AlarmTriggered
	case m.cfg.SnoozedUntil != nil:
		return models.AlarmSnoozed
	default:
		return models.AlarmArmed
	}
}

// Config copy of the aggregate
func (m *Machine) Config() models.AlarmConfig {
	cfg := m.cfg
	if cfg.SnoozedUntil != nil {
		until := *cfg.SnoozedUntil
		cfg.SnoozedUntil = &until
	}
	return cfg
}

// Target effective wake instant; zero when disabled
func (m *Machine) Target() time.Time {
	if !m.cfg.Enabled {
		return time.Time{}
	}
	return m.target
}

// Evaluate checks a new reading against the window. reading may be nil for a clock-only tick.
// Light sleep inside the window is checked first; reaching the target time always fires.
func (m *Machine) Evaluate(reading *models.SleepReading, now time.Time) *Transition {
	switch m.State() {
	case models.AlarmDisabled, models.AlarmTriggered:
		return nil
	case models.AlarmSnoozed:
		if now.Before(*m.cfg.SnoozedUntil) {
			return nil
		}
		m.resume()
	}

	if reading != nil && m.inWindow(now) && !m.lightSleepSuppressed(now) && reading.IsLightSleep() {
		return m.trigger(models.ReasonLightSleep, reading, now)
	}
	if !now.Before(m.target) {
		return m.trigger(models.ReasonTargetTimeReached, reading, now)
	}
	return nil
}

// Tick clock-only evaluation
func (m *Machine) Tick(now time.Time) *Transition {
	return m.Evaluate(nil, now)
}

// Snooze silences a ringing alarm for minutes (<= 0 uses the configured default)
func (m *Machine) Snooze(minutes int, now time.Time) (*Transition, error) {
	if m.State() != models.AlarmTriggered {
		return nil, ErrNotTriggered
	}
	if minutes <= 0 {
		minutes = m.snoozeMinutes
	}

	until := now.Add(time.Duration(minutes) * time.Minute)
	m.cfg.Triggered = false
	m.cfg.TriggerReason = models.ReasonNone
	m.cfg.SnoozedUntil = &until

	m.logger.Info("Alarm snoozed", zap.Time("until", until))
	return m.transition(models.EventSnoozed, models.ReasonNone, until, nil, now), nil
}

// Dismiss stops a ringing alarm. Light-sleep triggering stays off for the rest of the day,
// or until the pending wake time when its window crosses midnight; the wake-time fallback is unaffected.
func (m *Machine) Dismiss(now time.Time) (*Transition, error) {
	if m.State() != models.AlarmTriggered {
		return nil, ErrNotTriggered
	}

	m.cfg.Triggered = false
	m.cfg.TriggerReason = models.ReasonNone
	m.suppressedUntil = endOfDay(now)
	if now.Before(m.target) && m.target.After(m.suppressedUntil) {
		m.suppressedUntil = m.target
	}

	if !now.Before(m.target) {
		m.arm(now, false)
	}

	m.logger.Info("Alarm dismissed",
		zap.Time("next_target", m.target),
		zap.Time("light_sleep_suppressed_until", m.suppressedUntil),
	)
	return m.transition(models.EventDismissed, models.ReasonNone, m.target, nil, now), nil
}

// Apply merges remote or local edits. Setting a wake time without an enabled flag enables the alarm.
// Returns nil when nothing changed.
func (m *Machine) Apply(wakeTime *models.ClockTime, windowMinutes *int, enabled *bool, now time.Time) *Transition {
	next := m.cfg
	if wakeTime != nil {
		next.WakeTime = *wakeTime
		if enabled == nil {
			next.Enabled = true
		}
	}
	if windowMinutes != nil && *windowMinutes > 0 {
		next.WindowMinutes = *windowMinutes
	}
	if enabled != nil {
		next.Enabled = *enabled
	}

	if next.Enabled == m.cfg.Enabled && next.WakeTime == m.cfg.WakeTime && next.WindowMinutes == m.cfg.WindowMinutes {
		return nil
	}

	wasEnabled := m.cfg.Enabled
	m.cfg.WakeTime = next.WakeTime
	m.cfg.WindowMinutes = next.WindowMinutes

	if !next.Enabled && !wasEnabled {
		// settings edited while off; nothing to arm
		return m.transition("", models.ReasonNone, time.Time{}, nil, now)
	}

	if !next.Enabled {
		m.cfg.Enabled = false
		m.cfg.Triggered = false
		m.cfg.TriggerReason = models.ReasonNone
		m.cfg.SnoozedUntil = nil
		m.target = time.Time{}
		m.windowStart = time.Time{}
		m.logger.Info("Alarm disabled")
		return m.transition(models.EventDisabled, models.ReasonNone, time.Time{}, nil, now)
	}

	m.cfg.Enabled = true
	m.suppressedUntil = time.Time{}
	m.arm(now, true)
	m.logger.Info("Alarm set",
		zap.String("wake_time", m.cfg.WakeTime.String()),
		zap.Int("window_minutes", m.cfg.WindowMinutes),
		zap.Time("target", m.target),
	)
	return m.transition(models.EventSet, models.ReasonNone, m.target, nil, now)
}

// arm schedules the next occurrence of the wake time and clears any trigger or snooze
func (m *Machine) arm(now time.Time, inclusive bool) {
	target := m.cfg.WakeTime.On(now)
	if target.Before(now) || (!inclusive && !target.After(now)) {
		target = m.cfg.WakeTime.On(now.AddDate(0, 0, 1))
	}

	m.target = target
	m.windowStart = target.Add(-m.cfg.Window())
	if m.windowStart.Before(now) {
		m.windowStart = now
	}
	m.cfg.Triggered = false
	m.cfg.TriggerReason = models.ReasonNone
	m.cfg.SnoozedUntil = nil
}

// resume leaves snooze: the snooze end becomes the effective wake time, with no smart window
func (m *Machine) resume() {
	m.target = *m.cfg.SnoozedUntil
	m.windowStart = m.target
	m.cfg.SnoozedUntil = nil
}

func (m *Machine) trigger(reason models.TriggerReason, reading *models.SleepReading, now time.Time) *Transition {
	m.cfg.Triggered = true
	m.cfg.TriggerReason = reason
	telemetry.AlarmTriggersTotal.WithLabelValues(string(reason)).Inc()

	m.logger.Info("Alarm triggered",
		zap.String("reason", string(reason)),
		zap.Time("target", m.target),
	)
	return m.transition(models.EventTriggered, reason, m.target, reading, now)
}

func (m *Machine) transition(event models.AlarmEventType, reason models.TriggerReason, target time.Time, reading *models.SleepReading, now time.Time) *Transition {
	return &Transition{
		Event:   event,
		State:   m.State(),
		Reason:  reason,
		Target:  target,
		Config:  m.Config(),
		Reading: reading,
		At:      now,
	}
}

func (m *Machine) inWindow(now time.Time) bool {
	return !now.Before(m.windowStart) && now.Before(m.target)
}

func (m *Machine) lightSleepSuppressed(now time.Time) bool {
	return now.Before(m.suppressedUntil)
}

// endOfDay next local midnight
func endOfDay(now time.Time) time.Time {
	y, mo, d := now.Date()
	return time.Date(y, mo, d+1, 0, 0, 0, 0, now.Location())
}
