package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts is the number of attempts made for most outbound calls
const DefaultMaxAttempts = 3

// CallbackMaxAttempts is the number of attempts made to deliver a callback. Higher
// than DefaultMaxAttempts because delivery is the last step of a run.
const CallbackMaxAttempts = 5

// Policy describes how an operation is retried. Delays double after every
// failed attempt, starting at BaseDelay and capped at MaxDelay.
type Policy struct {
	// MaxAttempts is the total number of times the operation is tried, values
	// below 1 are treated as 1
	MaxAttempts int

	// BaseDelay is the wait before the second attempt
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts
	MaxDelay time.Duration

	// Retryable reports if an error may succeed when tried again. A nil Retryable
	// retries every error.
	Retryable func(err error) bool

	// OnRetry is called, if not nil, before waiting to retry a failed attempt
	OnRetry func(err error, wait time.Duration)
}

// WithMaxAttempts returns a copy of the policy which makes n attempts
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithRetryable returns a copy of the policy which uses a different retryable predicate
func (p Policy) WithRetryable(retryable func(err error) bool) Policy {
	p.Retryable = retryable
	return p
}

// WithOnRetry returns a copy of the policy which calls fn before each retry
func (p Policy) WithOnRetry(fn func(err error, wait time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

// Do runs op until it succeeds, returns a non-retryable error, the policy's attempts
// are exhausted or ctx is done. The error returned by the final attempt is
// returned untouched.
func Do(ctx context.Context, p Policy, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = p.BaseDelay
	expBackOff.MaxInterval = p.MaxDelay
	expBackOff.Multiplier = 2
	expBackOff.RandomizationFactor = 0
	expBackOff.MaxElapsedTime = 0

	policyBackOff := backoff.WithContext(
		backoff.WithMaxRetries(expBackOff, uint64(attempts-1)), ctx)

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = backoff.Notify(p.OnRetry)
	}

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}, policyBackOff, notify)
}

// DoValue is Do for operations which produce a value
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var value T

	err := Do(ctx, p, func() error {
		v, err := op()
		if err != nil {
			return err
		}

		value = v
		return nil
	})

	return value, err
}

// TransientStatus indicates an HTTP status code describes a failure which may not
// occur if the request is made again
func TransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
