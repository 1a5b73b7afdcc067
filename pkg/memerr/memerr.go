// Package memerr defines the closed error-kind taxonomy shared by every
// pipeline component: validation, not-found, resource-exhausted, external
// service, network/timeout, database, security, and processing errors.
// Components wrap underlying errors with one of the sentinels below so
// callers can classify failures with errors.Is instead of string matching.
package memerr

import "errors"

var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrExternalService   = errors.New("external service")
	ErrNetworkTimeout    = errors.New("network or timeout")
	ErrDatabase          = errors.New("database")
	ErrSecurity          = errors.New("security")
	ErrProcessing        = errors.New("processing")
)

// Kind classifies err against the taxonomy above, returning "" if err
// doesn't wrap any of the known sentinels.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrResourceExhausted):
		return "RESOURCE_EXHAUSTED"
	case errors.Is(err, ErrExternalService):
		return "EXTERNAL_SERVICE"
	case errors.Is(err, ErrNetworkTimeout):
		return "NETWORK_TIMEOUT"
	case errors.Is(err, ErrDatabase):
		return "DATABASE"
	case errors.Is(err, ErrSecurity):
		return "SECURITY"
	case errors.Is(err, ErrProcessing):
		return "PROCESSING"
	default:
		return ""
	}
}

// Retryable reports whether err's kind is retryable by default:
// resource-exhausted, external-service, or network/timeout. Database
// errors are never reported retryable: FK violations and connection
// failures are both wrapped as ErrDatabase and this helper does not tell
// them apart.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrResourceExhausted),
		errors.Is(err, ErrExternalService),
		errors.Is(err, ErrNetworkTimeout):
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind string to the status code the HTTP surface (§6)
// should use.
func HTTPStatus(kind string) int {
	switch kind {
	case "VALIDATION":
		return 400
	case "NOT_FOUND":
		return 404
	case "SECURITY":
		return 403
	case "RESOURCE_EXHAUSTED":
		return 429
	case "EXTERNAL_SERVICE", "NETWORK_TIMEOUT", "DATABASE", "PROCESSING":
		return 502
	default:
		return 500
	}
}
