package models

import (
	"time"
)

// CloudResult the cloud predictor's output; all three fields are present together or not at all
type CloudResult struct {
	Quality       Quality             `json:"quality"`
	Confidence    float64             `json:"confidence"`
	Probabilities map[Quality]float64 `json:"probabilities"`
}

// SleepReading one evaluated sample
type SleepReading struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Features     Features     `json:"source_features"`
	LocalQuality Quality      `json:"local_quality"`
	LocalScore   float64      `json:"local_score"`
	Cloud        *CloudResult `json:"cloud,omitempty"`
	Synced       bool         `json:"synced"`
}

// Reading source labels
const (
	SourceCloud = "cloud"
	SourceLocal = "local"
)

// FinalQuality cloud result wins when present, otherwise the local class.
// Always derived; never stored on its own.
func (r SleepReading) FinalQuality() Quality {
	if r.Cloud != nil {
		return r.Cloud.Quality
	}
	return r.LocalQuality
}

// Source which predictor decided FinalQuality
func (r SleepReading) Source() string {
	if r.Cloud != nil {
		return SourceCloud
	}
	return SourceLocal
}

// IsLightSleep final quality is shallow or the wearable flagged a light stage
func (r SleepReading) IsLightSleep() bool {
	return r.FinalQuality().IsLightSleep() || r.Features.LightSleepFlagged()
}
