package client

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is a typed API error decoded from the server's error envelope.
type Error struct {
	// StatusCode is the HTTP status code.
	StatusCode int `json:"-"`
	// Code is the machine-readable error code (e.g. "email_in_use").
	Code string `json:"code"`
	// Message is a human-readable description.
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// IsUnauthorized reports whether the request lacked valid credentials
// or a valid session.
func (e *Error) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsConflict reports whether the email address was already registered.
func (e *Error) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.Code == "email_in_use"
}

// IsInvalidInput reports whether the server rejected the request
// payload.
func (e *Error) IsInvalidInput() bool {
	return e.StatusCode == http.StatusBadRequest
}

func parseError(statusCode int, body []byte) error {
	var envelope struct {
		Error Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr := envelope.Error
		apiErr.StatusCode = statusCode
		return &apiErr
	}

	return &Error{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("unexpected status %d", statusCode),
	}
}
