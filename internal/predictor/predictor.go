package predictor

import (
	"context"
	"errors"

	"smartwake/internal/models"
)

// ErrUnavailable the predictor could not produce a result (timeout, transport, bad response)
var ErrUnavailable = errors.New("predictor unavailable")

// Prediction predictor output
type Prediction struct {
	Quality       models.Quality
	Score         float64
	Confidence    float64
	Probabilities map[models.Quality]float64 // cloud only
}

// Predictor scores one feature vector
type Predictor interface {
	Predict(ctx context.Context, features models.Features) (Prediction, error)
	IsAvailable() bool
}
