package limiter

import (
	"net/http"
	"strconv"
)

// HTTPError is a non-2xx answer from a managed-system endpoint
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	return "status " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}

func NewHTTPError(statusCode int, message, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message, Body: body}
}

// IsRetryableHTTPError reports whether a status means the service may
// recover: throttling or a 5xx gateway/availability failure.
func IsRetryableHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
