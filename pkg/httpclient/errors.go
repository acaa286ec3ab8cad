package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of an error response body is retained.
const maxErrorBody = 64 << 10

// StatusError is returned when the remote answered with a server error. The
// response body has already been consumed and closed.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, string(e.Body))
}

// newStatusError drains and closes resp into a StatusError.
func newStatusError(resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		body = []byte{}
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
