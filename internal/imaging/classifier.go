// Package imaging is the boundary to the chest-scan classifier. The model
// itself is served elsewhere; this package only loads a client for it once and
// turns its score into a positive/negative verdict.
package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/domain"
)

// DefaultThreshold is the score above which a scan is positive
const DefaultThreshold = 0.5

// Loader builds the classifier the first time it is needed
type Loader func(ctx context.Context) (domain.ImageClassifier, error)

// Handle owns the shared classifier. The loader runs exactly once no matter
// how many requests race on first use; its error, if any, is kept.
type Handle struct {
	once       sync.Once
	load       Loader
	classifier domain.ImageClassifier
	err        error
	logger     *logrus.Logger
}

// NewHandle creates a handle that will call load on first use
func NewHandle(load Loader, logger *logrus.Logger) *Handle {
	return &Handle{
		load:   load,
		logger: logger,
	}
}

// Get returns the loaded classifier, loading it if needed. The load is
// detached from the caller's cancellation since its result is kept.
func (h *Handle) Get(ctx context.Context) (domain.ImageClassifier, error) {
	h.once.Do(func() {
		start := time.Now()
		h.classifier, h.err = h.load(context.WithoutCancel(ctx))
		if h.err != nil {
			h.logger.WithError(h.err).Error("Failed to load image classifier")
			return
		}
		h.logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Image classifier loaded")
	})
	return h.classifier, h.err
}

// Classify loads the classifier if needed and classifies image
func (h *Handle) Classify(ctx context.Context, image []byte) (bool, error) {
	classifier, err := h.Get(ctx)
	if err != nil {
		return false, err
	}
	return classifier.Classify(ctx, image)
}

// StaticClassifier returns a fixed verdict, for offline runs and tests
type StaticClassifier struct {
	Positive bool
}

// Classify returns the fixed verdict for any non-empty image
func (s StaticClassifier) Classify(ctx context.Context, image []byte) (bool, error) {
	if len(image) == 0 {
		return false, domain.NewValidationError("image", "image is empty", nil)
	}
	return s.Positive, nil
}

// Prediction is the model-serving response
type Prediction struct {
	Probability float64 `json:"probability"`
}

// RemoteClassifier posts the raw image to a model-serving endpoint
type RemoteClassifier struct {
	endpoint   string
	threshold  float64
	httpClient *http.Client
}

// NewRemoteClassifier creates a client for the endpoint in config
func NewRemoteClassifier(config domain.ImagingConfig) (*RemoteClassifier, error) {
	if config.Endpoint == "" {
		return nil, domain.NewConfigurationError("imaging.endpoint is not set, no classifier is available")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Threshold <= 0 || config.Threshold >= 1 {
		config.Threshold = DefaultThreshold
	}

	return &RemoteClassifier{
		endpoint:  config.Endpoint,
		threshold: config.Threshold,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Predict returns the model's pneumonia score for image
func (r *RemoteClassifier) Predict(ctx context.Context, image []byte) (*Prediction, error) {
	if len(image) == 0 {
		return nil, domain.NewValidationError("image", "image is empty", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(body))
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if prediction.Probability < 0 || prediction.Probability > 1 {
		return nil, fmt.Errorf("classifier returned probability %v outside [0,1]", prediction.Probability)
	}
	return &prediction, nil
}

// Classify is positive when the score is strictly above the threshold
func (r *RemoteClassifier) Classify(ctx context.Context, image []byte) (bool, error) {
	prediction, err := r.Predict(ctx, image)
	if err != nil {
		return false, err
	}
	return prediction.Probability > r.threshold, nil
}

// RemoteLoader returns a Loader that builds a RemoteClassifier from config
func RemoteLoader(config domain.ImagingConfig) Loader {
	return func(ctx context.Context) (domain.ImageClassifier, error) {
		classifier, err := NewRemoteClassifier(config)
		if err != nil {
			return nil, err
		}
		return classifier, nil
	}
}
