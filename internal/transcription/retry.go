package transcription

import (
	"context"
	"time"

	"github.com/clinical-risk-fusion/internal/domain"
)

// Outcome tells the retry loop what to do with the result of one attempt
type Outcome int

const (
	// Succeed returns the attempt's value
	Succeed Outcome = iota
	// Retry waits and tries again while the budget lasts
	Retry
	// Fail returns the attempt's error at once
	Fail
)

// Classifier maps the error of one attempt to an Outcome
type Classifier func(err error) Outcome

// ClassifyByKind retries transient upstream failures and fails on everything else
func ClassifyByKind(err error) Outcome {
	switch {
	case err == nil:
		return Succeed
	case domain.IsKind(err, domain.KindTransientUpstream):
		return Retry
	default:
		return Fail
	}
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is the retry budget shared by every provider
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Sleep          SleepFunc
	// OnRetry is called before each wait
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy allows 3 retries with waits of 2s, 4s and 8s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		Sleep:          sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until classify says Succeed or Fail, or the retry budget is spent.
//
// The wait doubles after every retried attempt. An upstream Retry-After hint
// carried by the error replaces the wait for that attempt only; the doubling
// schedule carries on as if it had not been given. A spent budget surfaces as an
// ExhaustedRetriesError wrapping the last attempt's error.
func Do[T any](ctx context.Context, policy Policy, classify Classifier, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	backoff := policy.InitialBackoff
	attempts := policy.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := op(ctx, attempt)
		switch classify(err) {
		case Succeed:
			return value, nil
		case Fail:
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := backoff
		if hint, ok := domain.RetryAfterHint(err); ok {
			wait = hint
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
		backoff *= 2
	}

	return zero, domain.NewExhaustedRetriesError(attempts, lastErr)
}
