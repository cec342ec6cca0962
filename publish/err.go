package publish

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/appforge/app-builder-api/retry"

	"github.com/google/go-github/v62/github"
)

// ErrorKind categorizes why a publish failed
type ErrorKind string

// KindAuthConfigMissing indicates the Publisher has no GitHub client or owner
const KindAuthConfigMissing ErrorKind = "auth_config_missing"

// KindRepositoryAccessDenied indicates GitHub refused access to the repository,
// including when its name is taken by a repository the credentials cannot see
const KindRepositoryAccessDenied ErrorKind = "repository_access_denied"

// KindFileWriteConflict indicates GitHub rejected a file write or the branch has
// no commits to read back
const KindFileWriteConflict ErrorKind = "file_write_conflict"

// KindHostingEnableFailed indicates GitHub Pages could not be enabled. Only used
// to describe hosting outcomes, never fails a publish.
const KindHostingEnableFailed ErrorKind = "hosting_enable_failed"

// KindTransientServiceError indicates GitHub kept failing in a way which could
// succeed later
const KindTransientServiceError ErrorKind = "transient_service_error"

// PublishError provides details about a failed publish stage
type PublishError struct {
	// Kind of failure
	Kind ErrorKind

	// Stage describes what the Publisher was doing, ex., "create repository"
	Stage string

	// Err is the underlying error, can be nil
	Err error
}

// Error implements error
func (e PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to %s (%s): %s", e.Stage, e.Kind, e.Err.Error())
	}

	return fmt.Sprintf("failed to %s (%s)", e.Stage, e.Kind)
}

// Unwrap returns the underlying error
func (e PublishError) Unwrap() error {
	return e.Err
}

// IsKind reports if err is a PublishError of kind
func IsKind(err error, kind ErrorKind) bool {
	var publishErr PublishError
	if errors.As(err, &publishErr) {
		return publishErr.Kind == kind
	}

	return false
}

// statusCode returns the HTTP status code of a GitHub API error response, 0 if the
// error did not come from a response
func statusCode(err error) int {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}

	return 0
}

// isNotFound indicates the GitHub API responded with not found
func isNotFound(err error) bool {
	return statusCode(err) == http.StatusNotFound
}

// isTransient is the retry predicate for GitHub API calls. Rate limits, server
// errors and errors without a response (network failures, timeouts) are retried.
// Definitive 4xx responses are not.
func isTransient(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}

	code := statusCode(err)
	if code == 0 {
		return true
	}

	return retry.TransientStatus(code)
}

// classify wraps an error which survived the retry policy in a PublishError
func classify(stage string, err error) PublishError {
	kind := KindTransientServiceError

	if !isTransient(err) {
		switch statusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = KindRepositoryAccessDenied
		default:
			kind = KindFileWriteConflict
		}
	}

	return PublishError{
		Kind:  kind,
		Stage: stage,
		Err:   err,
	}
}
