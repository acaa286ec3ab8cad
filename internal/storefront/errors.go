package storefront

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// NetworkError is a transport failure: connectivity, timeout, an open
// circuit breaker or a 5xx answer. The caller may retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("storefront %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// GraphQLError is one entry of a top-level GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// APIError means the backend rejected the request as malformed or not
// allowed: a non-2xx status, an undecodable body or top-level GraphQL
// errors. Message carries the backend's text.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Errors     []GraphQLError
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("storefront %s: api error (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("storefront %s: api error: %s", e.Op, e.Message)
}

func newGraphQLAPIError(op string, errs []GraphQLError) *APIError {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return &APIError{Op: op, Message: strings.Join(msgs, "; "), Errors: errs}
}

// IsNetworkError reports whether err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// ToAppError maps storefront failures to HTTP-facing application errors.
// Other errors are returned unchanged.
func ToAppError(err error) error {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return apperrors.Unavailable("commerce backend is unreachable, please retry", err)
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return apperrors.Upstream(ae.Message, err)
	}
	return err
}
