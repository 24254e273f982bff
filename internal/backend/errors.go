package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for backend operations.
var (
	// ErrUnauthorized means the server explicitly rejected the credential.
	// Callers treat it differently from transient failures: only this
	// error may remove a stored credential.
	ErrUnauthorized = errors.New("unauthorized: credential rejected by server")

	// ErrStreamUnsupported means the server did not return an event stream.
	ErrStreamUnsupported = errors.New("server response is not an event stream")
)

// APIError carries a structured non-2xx response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// ParseAPIError builds an APIError from a response body, falling back to
// the raw body when the error envelope does not parse.
func ParseAPIError(statusCode int, body []byte) *APIError {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       errResp.Code,
			Message:    errResp.Message,
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       fmt.Sprintf("HTTP_%d", statusCode),
		Message:    string(body),
	}
}

// IsNotFound checks for a 404 response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsServerError checks for a 5xx response.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
