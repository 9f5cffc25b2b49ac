// Package errors provides the structured error taxonomy for FormBridge.
//
// Every failure surfaced by the submission core carries a stable Type from
// the fixed taxonomy, an HTTP status, optional field-level detail and at
// least one suggested recovery action.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is a stable machine-readable error discriminator.
type Type string

// The fixed error taxonomy.
const (
	TypeNotFound           Type = "not_found"
	TypeInvalidRequest     Type = "invalid_request"
	TypeInvalidResumeToken Type = "invalid_resume_token"
	TypeInvalid            Type = "invalid"
	TypeConflict           Type = "conflict"
	TypeNeedsApproval      Type = "needs_approval"
	TypeExpired            Type = "expired"
	TypeUnauthorized       Type = "unauthorized"
	TypeForbidden          Type = "forbidden"
	TypeRateLimited        Type = "rate_limited"
	TypeStorageError       Type = "storage_error"
	TypeInternalError      Type = "internal_error"
)

// HTTPStatus returns the canonical HTTP status for an error type.
func (t Type) HTTPStatus() int {
	switch t {
	case TypeNotFound:
		return http.StatusNotFound
	case TypeInvalid, TypeInvalidRequest:
		return http.StatusBadRequest
	case TypeInvalidResumeToken, TypeConflict:
		return http.StatusConflict
	case TypeExpired:
		return http.StatusGone
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeNeedsApproval:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NextAction suggests one concrete recovery to the caller.
type NextAction struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// AppError is a structured application error.
type AppError struct {
	// Type is the taxonomy discriminator.
	Type Type `json:"type"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Fields carries field-level validation details.
	Fields []FieldError `json:"fields,omitempty"`

	// NextActions carries suggested recoveries. Never empty on errors
	// built through the package constructors.
	NextActions []NextAction `json:"nextActions,omitempty"`

	// Retryable indicates the same request may succeed later.
	Retryable bool `json:"retryable"`

	// RetryAfterMs hints when to retry, when known.
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status for the error's type.
func (e *AppError) HTTPStatus() int {
	return e.Type.HTTPStatus()
}

// WithFields attaches field-level errors.
func (e *AppError) WithFields(fields []FieldError) *AppError {
	if e == nil || len(fields) == 0 {
		return e
	}
	e.Fields = fields
	return e
}

// WithNextActions replaces the suggested recovery actions.
func (e *AppError) WithNextActions(actions ...NextAction) *AppError {
	if e == nil || len(actions) == 0 {
		return e
	}
	e.NextActions = actions
	return e
}

// WithRetryAfter marks the error retryable after the given delay.
func (e *AppError) WithRetryAfter(ms int64) *AppError {
	if e == nil {
		return e
	}
	e.Retryable = true
	e.RetryAfterMs = ms
	return e
}

// New creates an AppError with the default recovery action for its type.
func New(t Type, message string) *AppError {
	return &AppError{
		Type:        t,
		Message:     message,
		NextActions: defaultNextActions(t),
		Retryable:   t == TypeInternalError || t == TypeStorageError || t == TypeRateLimited,
	}
}

// Wrap wraps an underlying error into an AppError.
func Wrap(err error, t Type, message string) *AppError {
	e := New(t, message)
	e.Err = err
	return e
}

// Taxonomy constructors.

func NotFound(message string) *AppError           { return New(TypeNotFound, message) }
func InvalidRequest(message string) *AppError     { return New(TypeInvalidRequest, message) }
func InvalidResumeToken(message string) *AppError { return New(TypeInvalidResumeToken, message) }
func Invalid(message string) *AppError            { return New(TypeInvalid, message) }
func Conflict(message string) *AppError           { return New(TypeConflict, message) }
func NeedsApproval(message string) *AppError      { return New(TypeNeedsApproval, message) }
func Expired(message string) *AppError            { return New(TypeExpired, message) }
func Unauthorized(message string) *AppError       { return New(TypeUnauthorized, message) }
func Forbidden(message string) *AppError          { return New(TypeForbidden, message) }
func RateLimited(message string) *AppError        { return New(TypeRateLimited, message) }
func StorageError(message string) *AppError       { return New(TypeStorageError, message) }
func Internal(message string) *AppError           { return New(TypeInternalError, message) }

// defaultNextActions maps each error type to at least one concrete recovery.
func defaultNextActions(t Type) []NextAction {
	switch t {
	case TypeNotFound:
		return []NextAction{{Type: "create", Description: "Create a new submission"}}
	case TypeInvalidResumeToken:
		return []NextAction{{Type: "resume", Description: "Fetch the submission again to obtain the current resume token"}}
	case TypeExpired:
		return []NextAction{{Type: "create", Description: "Create a new submission"}}
	case TypeInvalid, TypeInvalidRequest:
		return []NextAction{{Type: "validate", Description: "Correct the listed fields and retry"}}
	case TypeConflict:
		return []NextAction{{Type: "get", Description: "Reload the submission and retry with its current state"}}
	case TypeNeedsApproval:
		return []NextAction{{Type: "wait", Description: "Wait for a reviewer decision"}}
	case TypeUnauthorized:
		return []NextAction{{Type: "authenticate", Description: "Supply valid credentials"}}
	case TypeForbidden:
		return []NextAction{{Type: "authenticate", Description: "Use an identity with access to this resource"}}
	case TypeRateLimited:
		return []NextAction{{Type: "retry", Description: "Retry after the indicated delay"}}
	default:
		return []NextAction{{Type: "retry", Description: "Retry the request"}}
	}
}

// IsAppError checks if err is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t Type) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}
