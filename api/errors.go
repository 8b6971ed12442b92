package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for every failed backend call. Status is 0 when the
// backend could not be reached.
type APIError struct {
	Status int
	Detail string
	Code   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "api: " + e.Detail
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Detail)
}

// Unauthorized reports whether the backend rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// IsUnauthorized reports whether err is an [*APIError] with status 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 0
}

func decodeError(status int, statusText string, body []byte) *APIError {
	e := &APIError{Status: status}

	var b errorBody
	if err := json.Unmarshal(body, &b); err == nil {
		e.Code = b.Code
		var s string
		if err := json.Unmarshal(b.Detail, &s); err == nil {
			e.Detail = s
		} else if len(b.Detail) > 0 && string(b.Detail) != "null" {
			// FastAPI validation errors carry a list in detail.
			e.Detail = string(b.Detail)
		}
	}
	if e.Detail == "" {
		e.Detail = statusText
	}
	if e.Detail == "" {
		e.Detail = fmt.Sprintf("API error: %d", status)
	}
	return e
}
