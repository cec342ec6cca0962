package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appforge/app-builder-api/models"
	"github.com/appforge/app-builder-api/retry"

	"github.com/Noah-Huppert/golog"
	"github.com/go-resty/resty/v2"
)

// CallbackError is a non-successful response from an evaluation URL
type CallbackError struct {
	// Code is the HTTP status code
	Code int

	// Body is the response body
	Body string
}

// Error implements error
func (e CallbackError) Error() string {
	return fmt.Sprintf("callback responded with status %d: %s", e.Code, e.Body)
}

// CallbackNotifier delivers CallbackPayloads to evaluation URLs
type CallbackNotifier struct {
	// Client sends callback requests
	Client *resty.Client

	// Retry policy, attempts default to retry.CallbackMaxAttempts if not set
	Retry retry.Policy

	// Logger logs information
	Logger golog.Logger
}

// NewCallbackNotifier creates a CallbackNotifier whose requests time out after timeout
func NewCallbackNotifier(logger golog.Logger, policy retry.Policy, timeout time.Duration) CallbackNotifier {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return CallbackNotifier{
		Client: client,
		Retry:  policy.WithMaxAttempts(retry.CallbackMaxAttempts),
		Logger: logger,
	}
}

// Send POSTs payload to url as JSON. Network failures and transient statuses are
// retried, other non-2xx responses fail immediately with a CallbackError.
func (n CallbackNotifier) Send(ctx context.Context, url string, payload models.CallbackPayload) error {
	policy := n.Retry
	if policy.MaxAttempts < 1 {
		policy = policy.WithMaxAttempts(retry.CallbackMaxAttempts)
	}

	policy = policy.WithRetryable(isTransientCallback).WithOnRetry(
		func(err error, wait time.Duration) {
			n.Logger.Warnf("callback to %s failed, retrying in %s: %s", url, wait, err.Error())
		})

	return retry.Do(ctx, policy, func() error {
		res, err := n.Client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(url)
		if err != nil {
			return fmt.Errorf("failed to send callback: %w", err)
		}

		if !res.IsSuccess() {
			return CallbackError{
				Code: res.StatusCode(),
				Body: res.String(),
			}
		}

		return nil
	})
}

// isTransientCallback retries network failures and transient statuses
func isTransientCallback(err error) bool {
	var callbackErr CallbackError
	if errors.As(err, &callbackErr) {
		return retry.TransientStatus(callbackErr.Code)
	}

	return !errors.Is(err, context.Canceled)
}
