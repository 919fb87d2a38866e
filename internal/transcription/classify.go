package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinical-risk-fusion/internal/domain"
)

const maxErrorBodyLength = 512

// classifyResponse turns a non-2xx upstream status into the error taxonomy.
// 429 and every 5xx are transient; 401 means the key was refused; any other
// status is a terminal client error.
func classifyResponse(provider string, status int, header http.Header, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return domain.NewAuthenticationError(provider, status, errors.New(truncate(string(body))))
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.NewTransientUpstreamError(provider, status, parseRetryAfter(header.Get("Retry-After")), errors.New(truncate(string(body))))
	default:
		return domain.NewUpstreamClientError(provider, status, truncate(string(body)))
	}
}

// classifyTransport wraps a failure to get any response at all.
// Cancellation by the caller is not retried; a per-attempt timeout is.
func classifyTransport(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.NewTransientUpstreamError(provider, 0, 0, err)
}

// parseRetryAfter accepts only the delay-seconds form of the header
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBodyLength {
		return s[:maxErrorBodyLength] + "..."
	}
	return s
}

// malformedResponse reports a 2xx body that could not be decoded
func malformedResponse(provider string, err error) error {
	return &domain.RiskError{
		Kind:    domain.KindUpstreamClient,
		Message: fmt.Sprintf("%s returned a malformed response", provider),
		Err:     err,
	}
}
