// Package transcription is the gateway to the speech-to-text providers.
//
// Every provider implements domain.Transcriber. Single attempts are provider
// specific; retry, backoff, rate limiting and the per-attempt timeout are shared
// and live in this file and retry.go.
package transcription

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/clinical-risk-fusion/internal/domain"
)

// Provider names accepted by the factory
const (
	ProviderWhisper  = "whisper"
	ProviderGemini   = "gemini"
	ProviderDeepgram = "deepgram"
)

// Providers lists the supported provider names
var Providers = []string{ProviderWhisper, ProviderGemini, ProviderDeepgram}

// DefaultTimeout bounds a single upstream call
const DefaultTimeout = 90 * time.Second

// placeholders are the sample values shipped in example env files
var placeholders = map[string]string{
	ProviderWhisper:  "your-openai-api-key-here",
	ProviderGemini:   "your-google-api-key-here",
	ProviderDeepgram: "your-deepgram-api-key-here",
}

// credentialEnv names the variable an operator sets for each provider
var credentialEnv = map[string]string{
	ProviderWhisper:  "OPENAI_API_KEY",
	ProviderGemini:   "GOOGLE_API_KEY",
	ProviderDeepgram: "DEEPGRAM_API_KEY",
}

// Options carries the settings shared by every provider
type Options struct {
	Timeout    time.Duration
	Policy     Policy
	RateLimit  float64 // requests per second, 0 means unlimited
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Policy.InitialBackoff <= 0 && o.Policy.MaxRetries == 0 && o.Policy.Sleep == nil {
		o.Policy = DefaultPolicy()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}

// base holds what every provider shares
type base struct {
	name    string
	apiKey  string
	timeout time.Duration
	policy  Policy
	limiter *rate.Limiter
	http    *http.Client
	logger  *logrus.Logger
}

func newBase(name, apiKey string, opts Options) base {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return base{
		name:    name,
		apiKey:  strings.TrimSpace(apiKey),
		timeout: opts.Timeout,
		policy:  opts.Policy,
		limiter: rate.NewLimiter(limit, 1),
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
}

// Name returns the provider key
func (b *base) Name() string {
	return b.name
}

// IsConfigured reports whether a non-placeholder key is present
func (b *base) IsConfigured() bool {
	return b.apiKey != "" && b.apiKey != placeholders[b.name]
}

func (b *base) requireConfigured() error {
	if b.IsConfigured() {
		return nil
	}
	return domain.NewConfigurationError(fmt.Sprintf("%s speech-to-text is not configured, set %s", b.name, credentialEnv[b.name]))
}

// run executes attempt under the shared retry policy. Each attempt waits for
// the rate limiter and gets its own timeout.
func (b *base) run(ctx context.Context, filename string, attempt func(attemptCtx context.Context) (string, error)) (string, error) {
	policy := b.policy
	policy.OnRetry = func(n int, wait time.Duration, err error) {
		b.logger.WithFields(logrus.Fields{
			"provider": b.name,
			"attempt":  n,
			"wait":     wait.String(),
			"file":     filename,
		}).WithError(err).Warn("Transcription attempt failed, retrying")
	}

	start := time.Now()
	transcript, err := Do(ctx, policy, ClassifyByKind, func(ctx context.Context, n int) (string, error) {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return attempt(attemptCtx)
	})
	if err != nil {
		b.logger.WithFields(logrus.Fields{
			"provider": b.name,
			"file":     filename,
			"kind":     domain.KindOf(err),
		}).WithError(err).Error("Transcription failed")
		return "", err
	}

	b.logger.WithFields(logrus.Fields{
		"provider":    b.name,
		"file":        filename,
		"characters":  len(transcript),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Transcription completed")

	return transcript, nil
}

// audioMIME guesses a content type from the file extension
func audioMIME(filename, fallback string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(name, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(name, ".m4a"):
		return "audio/mp4"
	default:
		return fallback
	}
}
