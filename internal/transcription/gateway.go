package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/clinical-risk-fusion/internal/domain"
)

// NewProvider builds the named provider without any decoration
func NewProvider(name string, config domain.TranscriptionConfig, opts Options) (domain.Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderWhisper:
		return NewWhisper(config.Whisper, opts), nil
	case ProviderGemini:
		return NewGemini(config.Gemini, opts), nil
	case ProviderDeepgram:
		return NewDeepgram(config.Deepgram, opts), nil
	default:
		return nil, domain.NewConfigurationError(fmt.Sprintf("unknown transcription provider %q, expected one of %s", name, strings.Join(Providers, ", ")))
	}
}

// New builds the provider selected by config.Provider, wrapped in a circuit
// breaker when one is enabled
func New(config domain.TranscriptionConfig, logger *logrus.Logger) (domain.Transcriber, error) {
	opts := OptionsFromConfig(config, logger)

	provider, err := NewProvider(config.Provider, config, opts)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"provider":   provider.Name(),
		"configured": provider.IsConfigured(),
		"breaker":    config.CircuitBreaker.Enabled,
	}).Info("Transcription provider selected")

	if !config.CircuitBreaker.Enabled {
		return provider, nil
	}
	return WithCircuitBreaker(provider, config.CircuitBreaker, logger), nil
}

// OptionsFromConfig maps configuration onto provider options
func OptionsFromConfig(config domain.TranscriptionConfig, logger *logrus.Logger) Options {
	policy := DefaultPolicy()
	if config.MaxRetries > 0 {
		policy.MaxRetries = config.MaxRetries
	}
	if config.InitialBackoff > 0 {
		policy.InitialBackoff = config.InitialBackoff
	}
	return Options{
		Timeout:   config.Timeout,
		Policy:    policy,
		RateLimit: config.RateLimit,
		Logger:    logger,
	}
}

// Status describes one provider for the status endpoint and the setup CLI
type Status struct {
	Name       string `json:"name"`
	Selected   bool   `json:"selected"`
	Configured bool   `json:"configured"`
	EnvVar     string `json:"env_var"`
}

// Statuses reports every provider's configuration state without network calls
func Statuses(config domain.TranscriptionConfig) []Status {
	statuses := make([]Status, 0, len(Providers))
	for _, name := range Providers {
		provider, err := NewProvider(name, config, Options{})
		if err != nil {
			continue
		}
		statuses = append(statuses, Status{
			Name:       name,
			Selected:   strings.EqualFold(config.Provider, name),
			Configured: provider.IsConfigured(),
			EnvVar:     credentialEnv[name],
		})
	}
	return statuses
}

// breakerTranscriber short-circuits a provider whose retry budget keeps running out
type breakerTranscriber struct {
	domain.Transcriber
	breaker *gobreaker.CircuitBreaker
}

// WithCircuitBreaker decorates next. Only exhausted retries count as failures;
// bad input or bad credentials never open the breaker.
func WithCircuitBreaker(next domain.Transcriber, config domain.CircuitBreakerConfig, logger *logrus.Logger) domain.Transcriber {
	threshold := config.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Transcription circuit breaker changed state")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsKind(err, domain.KindExhaustedRetries)
		},
	}

	return &breakerTranscriber{
		Transcriber: next,
		breaker:     gobreaker.NewCircuitBreaker(settings),
	}
}

// Transcribe runs the wrapped provider through the breaker
func (b *breakerTranscriber) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Transcriber.Transcribe(ctx, filename, audio, language)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", domain.NewUnavailableError(b.Name(), err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
