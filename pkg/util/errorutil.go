package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewGuardRejected reports a workflow transition blocked by a specific guard.
func NewGuardRejected(condition, message string, details map[string]any) *DomainError {
	if details == nil {
		details = map[string]any{}
	}
	details["condition"] = condition
	return NewDomainError("GUARD_REJECTED", message, http.StatusUnprocessableEntity, details)
}

// NewRoleRequired reports a transition demanding a role the actor lacks.
func NewRoleRequired(role string) *DomainError {
	return NewDomainError("ROLE_REQUIRED",
		fmt.Sprintf("transition requires role %q", role),
		http.StatusForbidden,
		map[string]any{"role": role})
}

// NewCommentRequired reports a transition demanding a comment.
func NewCommentRequired() *DomainError {
	return NewDomainError("COMMENT_REQUIRED", "transition requires a comment", http.StatusUnprocessableEntity, nil)
}

// NewTransitionUndefined reports a missing from->to edge in the active workflow.
func NewTransitionUndefined(from, to string) *DomainError {
	return NewDomainError("TRANSITION_UNDEFINED",
		fmt.Sprintf("no transition from %q to %q", from, to),
		http.StatusUnprocessableEntity,
		map[string]any{"from": from, "to": to})
}

// NewInvalidQueueState reports an operation on an inactive entry or a bad position.
func NewInvalidQueueState(message string, details map[string]any) *DomainError {
	return NewDomainError("INVALID_QUEUE_STATE", message, http.StatusConflict, details)
}

// NewCalendarConfig reports malformed business-hours configuration.
func NewCalendarConfig(message string, details map[string]any) *DomainError {
	return NewDomainError("CALENDAR_CONFIG", message, http.StatusUnprocessableEntity, details)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
