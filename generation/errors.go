package generation

import (
	"errors"
	"fmt"

	"github.com/appforge/app-builder-api/retry"

	"github.com/openai/openai-go"
)

// errEmptyCompletion is returned by providers which answered without any text
var errEmptyCompletion = errors.New("provider returned no text")

// StatusError is a non-successful HTTP response from a provider
type StatusError struct {
	// Provider which responded
	Provider string

	// Code is the HTTP status code
	Code int

	// Body is the response body
	Body string
}

// Error implements error
func (e StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d: %s", e.Provider, e.Code, e.Body)
}

// isTransient is the retry predicate for provider calls. Errors without a status
// code, ex., network failures and timeouts, are retried.
func isTransient(err error) bool {
	if errors.Is(err, errEmptyCompletion) {
		return false
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return retry.TransientStatus(statusErr.Code)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retry.TransientStatus(apiErr.StatusCode)
	}

	return true
}
