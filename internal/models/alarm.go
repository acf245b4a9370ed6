package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWakeTime wake time is not "H:MM"
var ErrInvalidWakeTime = errors.New("invalid wake time")

// ClockTime local time of day
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "H:MM" or "HH:MM"
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidWakeTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidWakeTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidWakeTime, s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// String formats as "H:MM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%d:%02d", c.Hour, c.Minute)
}

// On returns this time of day on day's calendar date, in day's location
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// Next first occurrence at or after now
func (c ClockTime) Next(now time.Time) time.Time {
	t := c.On(now)
	if t.Before(now) {
		t = c.On(now.AddDate(0, 0, 1))
	}
	return t
}

// MarshalText implements encoding.TextMarshaler
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TriggerReason why the alarm fired
type TriggerReason string

const (
	ReasonNone              TriggerReason = ""
	ReasonTargetTimeReached TriggerReason = "TargetTimeReached"
	ReasonLightSleep        TriggerReason = "LightSleepDetected"
)

// AlarmState alarm lifecycle state
type AlarmState string

const (
	AlarmDisabled  AlarmState = "disabled"
	AlarmArmed     AlarmState = "armed"
	AlarmTriggered AlarmState = "triggered"
	AlarmSnoozed   AlarmState = "snoozed"
)

// AlarmConfig the per-device alarm aggregate
type AlarmConfig struct {
	Enabled       bool          `json:"enabled"`
	WakeTime      ClockTime     `json:"wake_time"`
	WindowMinutes int           `json:"window_minutes"`
	Triggered     bool          `json:"triggered"`
	TriggerReason TriggerReason `json:"trigger_reason,omitempty"`
	SnoozedUntil  *time.Time    `json:"snoozed_until,omitempty"`
}

// Validate checks the aggregate invariants
func (c AlarmConfig) Validate() error {
	if c.WindowMinutes <= 0 {
		return fmt.Errorf("window_minutes must be positive, got %d", c.WindowMinutes)
	}
	if c.Triggered && c.TriggerReason == ReasonNone {
		return errors.New("triggered alarm without a trigger reason")
	}
	return nil
}

// Window duration of the smart wake window
func (c AlarmConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// AlarmEventType alarm log entry kind
type AlarmEventType string

const (
	EventSet       AlarmEventType = "set"
	EventDisabled  AlarmEventType = "disabled"
	EventTriggered AlarmEventType = "triggered"
	EventSnoozed   AlarmEventType = "snoozed"
	EventDismissed AlarmEventType = "dismissed"
)

// AlarmEvent one alarm log row
type AlarmEvent struct {
	ID            string         `json:"id"`
	Type          AlarmEventType `json:"event_type"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	Reason        TriggerReason  `json:"trigger_reason,omitempty"`
	SleepQuality  Quality        `json:"sleep_quality,omitempty"`
	SleepScore    *float64       `json:"sleep_score,omitempty"`
	WindowMinutes int            `json:"window_minutes"`
	CreatedAt     time.Time      `json:"created_at"`
}
