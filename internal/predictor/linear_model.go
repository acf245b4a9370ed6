package predictor

import (
	"fmt"
	"os"

	"smartwake/internal/models"

	"gopkg.in/yaml.v3"
)

// LinearModel score = intercept + sum(coefficient * feature)
type LinearModel struct {
	Version      string             `yaml:"version"`
	Intercept    float64            `yaml:"intercept"`
	Coefficients map[string]float64 `yaml:"coefficients"`
}

// DefaultLinearModel coefficients used when no model file is configured
func DefaultLinearModel() *LinearModel {
	return &LinearModel{
		Version:   "builtin-1",
		Intercept: 8.0,
		Coefficients: map[string]float64{
			"revitalization_score":  0.55,
			"deep_sleep_in_minutes": 0.09,
			"resting_heart_rate":    -0.12,
			"restlessness":          -18.0,
			"DayOfWeek":             0.0,
			"IsWeekend":             1.5,
			"WakeupHour":            0.3,
			"Score_Lag1":            0.2,
			"DeepSleep_Lag1":        0.02,
			"RHR_Lag1":              -0.04,
		},
	}
}

// LoadLinearModel reads coefficients from a yaml file
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model LinearModel
	if err := yaml.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(model.Coefficients) == 0 {
		return nil, fmt.Errorf("model file %s has no coefficients", path)
	}
	return &model, nil
}

// Score evaluates the model, clamped to 0-100
func (m *LinearModel) Score(values map[string]float64) (float64, error) {
	score := m.Intercept
	for name, coef := range m.Coefficients {
		v, ok := values[name]
		if !ok {
			return 0, fmt.Errorf("%w: model input %s missing", models.ErrInvalidFeatures, name)
		}
		score += coef * v
	}

	switch {
	case score < 0:
		score = 0
	case score > 100:
		score = 100
	}
	return score, nil
}
