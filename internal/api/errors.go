package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// Error is a failure response from the Echoleads API. It carries enough
// information to classify the failure per the client's error taxonomy:
// authentication rejection, validation error, or unexpected error.
// Transient network failures never produce an *Error; they surface as the
// transport's own error types.
type Error struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("echoleads api: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("echoleads api: %d", e.Status)
}

// AuthRejected reports whether the failure is an authentication rejection:
// expired or invalid credentials. These are terminal for the current
// session and force a re-login.
func (e *Error) AuthRejected() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Validation reports whether the failure is a request validation error.
func (e *Error) Validation() bool {
	return e.Status == http.StatusUnprocessableEntity || len(e.Fields) > 0
}

// FirstFieldError returns the first field-level validation message, or the
// top-level message when no field errors are present. Fields are visited in
// sorted order so the result is stable.
func (e *Error) FirstFieldError() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if msgs := e.Fields[name]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return e.Message
}

// IsAuthRejection reports whether err is an API authentication rejection.
func IsAuthRejection(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.AuthRejected()
}

// IsValidation reports whether err is an API validation error.
func IsValidation(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Validation()
}

// parseError builds an *Error from a non-2xx response body. The backend
// reports failures as {"message": ...} with optional {"errors": {field:
// [messages]}}; a bare {"error": ...} shape is accepted as a fallback.
func parseError(status int, body []byte) *Error {
	apiErr := &Error{Status: status}

	var payload struct {
		Message string              `json:"message"`
		ErrMsg  string              `json:"error"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.ErrMsg
		}
		apiErr.Fields = payload.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
