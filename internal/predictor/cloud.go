package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"smartwake/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// probabilities must sum to 1 within this tolerance
const probabilityTolerance = 0.05

type cloudRequest struct {
	Data []map[string]float64 `json:"data"`
}

type cloudResult struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// CloudPredictor remote scoring endpoint
type CloudPredictor struct {
	httpClient *resty.Client
	endpoint   string
	apiKey     string
	retryAfter time.Duration
	logger     *zap.Logger

	mu          sync.Mutex
	lastFailure time.Time
	now         func() time.Time
}

var _ Predictor = (*CloudPredictor)(nil)

// NewCloudPredictor creates the client. Retries are left to the offline queue.
func NewCloudPredictor(endpoint, apiKey string, timeout, retryAfter time.Duration, logger *zap.Logger) *CloudPredictor {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &CloudPredictor{
		httpClient: client,
		endpoint:   endpoint,
		apiKey:     apiKey,
		retryAfter: retryAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Predict posts {"data":[features]} and parses the first result
func (p *CloudPredictor) Predict(ctx context.Context, features models.Features) (Prediction, error) {
	if p.endpoint == "" || p.apiKey == "" {
		return Prediction{}, fmt.Errorf("%w: cloud endpoint not configured", ErrUnavailable)
	}

	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetAuthToken(p.apiKey).
		SetBody(cloudRequest{Data: []map[string]float64{features.Values}}).
		Post(p.endpoint)
	if err != nil {
		p.markFailure()
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		p.markFailure()
		return Prediction{}, fmt.Errorf("%w: cloud returned %d", ErrUnavailable, resp.StatusCode())
	}

	prediction, err := parseCloudResponse(resp.Body())
	if err != nil {
		p.markFailure()
		p.logger.Warn("Unusable cloud response", zap.Error(err))
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.mu.Lock()
	p.lastFailure = time.Time{}
	p.mu.Unlock()

	return prediction, nil
}

// IsAvailable false for retryAfter after the last failure
func (p *CloudPredictor) IsAvailable() bool {
	if p.endpoint == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastFailure.IsZero() {
		return true
	}
	return p.now().Sub(p.lastFailure) >= p.retryAfter
}

func (p *CloudPredictor) markFailure() {
	p.mu.Lock()
	p.lastFailure = p.now()
	p.mu.Unlock()
}

// parseCloudResponse the endpoint sometimes wraps its JSON array in a JSON string
func parseCloudResponse(body []byte) (Prediction, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return Prediction{}, fmt.Errorf("failed to decode wrapped response: %w", err)
		}
		body = []byte(inner)
	}

	var results []cloudResult
	if err := json.Unmarshal(body, &results); err != nil {
		return Prediction{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(results) == 0 {
		return Prediction{}, fmt.Errorf("empty response")
	}
	result := results[0]

	quality, err := models.ParseQuality(result.Prediction)
	if err != nil {
		return Prediction{}, err
	}
	if len(result.Probabilities) == 0 {
		return Prediction{}, fmt.Errorf("response without probabilities")
	}

	probabilities := make(map[models.Quality]float64, len(result.Probabilities))
	var sum float64
	for class, prob := range result.Probabilities {
		q, err := models.ParseQuality(class)
		if err != nil {
			return Prediction{}, err
		}
		probabilities[q] = prob
		sum += prob
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return Prediction{}, fmt.Errorf("probabilities sum to %.3f", sum)
	}

	return Prediction{
		Quality:       quality,
		Score:         result.Confidence * 100,
		Confidence:    result.Confidence,
		Probabilities: probabilities,
	}, nil
}
