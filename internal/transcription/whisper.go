package transcription

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clinical-risk-fusion/internal/domain"
)

// Whisper uploads audio to the OpenAI transcription endpoint
type Whisper struct {
	base
	client *openai.Client
	model  string
}

// NewWhisper creates a Whisper provider. An empty BaseURL targets api.openai.com.
func NewWhisper(cfg domain.ProviderConfig, opts Options) *Whisper {
	w := &Whisper{
		base:  newBase(ProviderWhisper, cfg.APIKey, opts),
		model: cfg.Model,
	}
	if w.model == "" {
		w.model = openai.Whisper1
	}

	clientConfig := openai.DefaultConfig(w.apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	transport := w.http.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &retryAfterRecorder{next: transport},
		Timeout:   w.http.Timeout,
	}
	w.client = openai.NewClientWithConfig(clientConfig)

	return w
}

// Transcribe sends a multipart upload; the language is forwarded when given
func (w *Whisper) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	if err := w.requireConfigured(); err != nil {
		return "", err
	}

	return w.run(ctx, filename, func(attemptCtx context.Context) (string, error) {
		hint := &retryAfterHint{}
		resp, err := w.client.CreateTranscription(withRetryAfterHint(attemptCtx, hint), openai.AudioRequest{
			Model:    w.model,
			FilePath: filename,
			Reader:   bytes.NewReader(audio),
			Language: language,
		})
		if err != nil {
			return "", w.classify(ctx, err, hint.get())
		}
		return resp.Text, nil
	})
}

// classify maps go-openai errors onto the shared taxonomy
func (w *Whisper) classify(ctx context.Context, err error, retryAfter time.Duration) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return classifyTransport(ctx, w.name, err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return domain.NewAuthenticationError(w.name, status, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.NewTransientUpstreamError(w.name, status, retryAfter, err)
	default:
		return &domain.RiskError{
			Kind:       domain.KindUpstreamClient,
			Message:    "whisper rejected the request",
			StatusCode: status,
			Err:        err,
		}
	}
}

type retryAfterKey struct{}

// retryAfterHint receives the Retry-After header of the response to one attempt.
// go-openai does not expose response headers on errors.
type retryAfterHint struct {
	mu    sync.Mutex
	value time.Duration
}

func (h *retryAfterHint) set(d time.Duration) {
	h.mu.Lock()
	h.value = d
	h.mu.Unlock()
}

func (h *retryAfterHint) get() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

func withRetryAfterHint(ctx context.Context, hint *retryAfterHint) context.Context {
	return context.WithValue(ctx, retryAfterKey{}, hint)
}

type retryAfterRecorder struct {
	next http.RoundTripper
}

func (r *retryAfterRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if hint, ok := req.Context().Value(retryAfterKey{}).(*retryAfterHint); ok {
		hint.set(parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	return resp, nil
}
