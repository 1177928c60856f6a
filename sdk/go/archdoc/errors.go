// Package archdoc provides a Go client for the archdoc design report API.
package archdoc

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the server.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeBadGateway        = "BAD_GATEWAY"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeExportFailed      = "EXPORT_FAILED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Error represents an error from the archdoc API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	// Field names the invalid intake field for INVALID_INPUT errors.
	Field string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("archdoc: %s (%d): %s: %s", e.Code, e.StatusCode, e.Field, e.Message)
	}
	return fmt.Sprintf("archdoc: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func statusIs(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == status
}

func codeIs(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsNotFound reports whether err is a 404: an unknown view, project or component.
func IsNotFound(err error) bool { return statusIs(err, http.StatusNotFound) }

// IsUnauthorized reports whether err is a 401.
func IsUnauthorized(err error) bool { return statusIs(err, http.StatusUnauthorized) }

// IsRateLimited reports whether err is a 429.
func IsRateLimited(err error) bool { return statusIs(err, http.StatusTooManyRequests) }

// IsConflict reports whether err is a 409, e.g. a call already in flight on the view.
func IsConflict(err error) bool { return statusIs(err, http.StatusConflict) }

// IsInvalidInput reports whether the server rejected the request body.
func IsInvalidInput(err error) bool { return codeIs(err, CodeInvalidInput) }

// IsAgentFailure reports whether the design agent could not be reached or
// answered with something that is not a design.
func IsAgentFailure(err error) bool {
	return codeIs(err, CodeBadGateway) || codeIs(err, CodeMalformedResponse)
}
