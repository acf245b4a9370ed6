package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidFeatures feature vector cannot be scored; the cycle is skipped, not retried
var ErrInvalidFeatures = errors.New("invalid feature vector")

// Origin where a feature vector came from
type Origin string

const (
	OriginMonitor Origin = "monitor" // scheduled polling; queued for cloud when offline
	OriginManual  Origin = "manual"  // ad-hoc prediction; never queued
)

// LightSleepFlag optional stage flag supplied by the wearable pipeline (1 = light sleep)
const LightSleepFlag = "is_light_sleep"

// RequiredFeatures inputs both predictors are trained on
var RequiredFeatures = []string{
	"revitalization_score",
	"deep_sleep_in_minutes",
	"resting_heart_rate",
	"restlessness",
	"DayOfWeek",
	"IsWeekend",
	"WakeupHour",
	"Score_Lag1",
	"DeepSleep_Lag1",
	"RHR_Lag1",
}

// Features one input sample for the predictors
type Features struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
	Origin    Origin             `json:"origin,omitempty"`
}

// Validate checks every required field is present and finite
func (f Features) Validate() error {
	if len(f.Values) == 0 {
		return fmt.Errorf("%w: no values", ErrInvalidFeatures)
	}

	var missing []string
	for _, name := range RequiredFeatures {
		v, ok := f.Values[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidFeatures, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %v", ErrInvalidFeatures, missing)
	}

	switch f.Origin {
	case "", OriginMonitor, OriginManual:
	default:
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidFeatures, f.Origin)
	}
	return nil
}

// Queueable manual readings are never queued for cloud sync
func (f Features) Queueable() bool {
	return f.Origin != OriginManual
}

// LightSleepFlagged reports the explicit stage flag
func (f Features) LightSleepFlagged() bool {
	return f.Values[LightSleepFlag] == 1
}
