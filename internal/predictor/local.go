package predictor

import (
	"context"
	"math"

	"smartwake/internal/models"

	"go.uber.org/zap"
)

// LocalPredictor on-device regression model; always available
type LocalPredictor struct {
	model  *LinearModel
	logger *zap.Logger
}

var _ Predictor = (*LocalPredictor)(nil)

// NewLocalPredictor nil model falls back to the built-in coefficients
func NewLocalPredictor(model *LinearModel, logger *zap.Logger) *LocalPredictor {
	if model == nil {
		model = DefaultLinearModel()
	}
	return &LocalPredictor{model: model, logger: logger}
}

// Predict scores features and maps the score to a quality band
func (p *LocalPredictor) Predict(_ context.Context, features models.Features) (Prediction, error) {
	if err := features.Validate(); err != nil {
		return Prediction{}, err
	}

	score, err := p.model.Score(features.Values)
	if err != nil {
		return Prediction{}, err
	}
	score = math.Round(score*10) / 10

	p.logger.Debug("Local prediction",
		zap.Float64("score", score),
		zap.String("model_version", p.model.Version),
	)

	return Prediction{
		Quality:    models.QualityFromScore(score),
		Score:      score,
		Confidence: math.Min(score/100, 1),
	}, nil
}

// IsAvailable the local model never goes away
func (p *LocalPredictor) IsAvailable() bool {
	return true
}
