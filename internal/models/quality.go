package models

import (
	"fmt"
	"strings"
)

// Quality sleep quality class
type Quality string

const (
	QualityPoor      Quality = "Poor"
	QualityFair      Quality = "Fair"
	QualityGood      Quality = "Good"
	QualityExcellent Quality = "Excellent"
)

// ParseQuality accepts any letter case ("fair", "FAIR", "Fair")
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poor":
		return QualityPoor, nil
	case "fair":
		return QualityFair, nil
	case "good":
		return QualityGood, nil
	case "excellent":
		return QualityExcellent, nil
	}
	return "", fmt.Errorf("unknown sleep quality %q", s)
}

// QualityFromScore maps a 0-100 score to its band
func QualityFromScore(score float64) Quality {
	switch {
	case score >= 85:
		return QualityExcellent
	case score >= 70:
		return QualityGood
	case score >= 55:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Valid reports whether q is one of the four classes
func (q Quality) Valid() bool {
	switch q {
	case QualityPoor, QualityFair, QualityGood, QualityExcellent:
		return true
	}
	return false
}

// IsLightSleep Fair and Poor are the shallow stages a wake-up is allowed in
func (q Quality) IsLightSleep() bool {
	return q == QualityFair || q == QualityPoor
}
