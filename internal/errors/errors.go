package errors

import (
	stderrors "errors"
	"fmt"
)

const (
	ErrNotFound          = "NOT_FOUND"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrConflict          = "CONFLICT"
	ErrValidation        = "VALIDATION"
	ErrTransient         = "TRANSIENT"
	ErrFatal             = "FATAL"
	ErrInternal          = "INTERNAL"
)

type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func Wrap(code, msg string, err error) *DomainError {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// --- Generic ---

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", entity, id)}
}

func NewInvalidTransition(from, to string) *DomainError {
	return &DomainError{Code: ErrInvalidTransition, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

func NewUnauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrUnauthorized, Message: msg}
}

func NewForbidden(msg string) *DomainError {
	return &DomainError{Code: ErrForbidden, Message: msg}
}

func NewConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConflict, Message: msg}
}

func NewValidation(msg string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg}
}

func NewTransient(msg string, err error) *DomainError {
	return &DomainError{Code: ErrTransient, Message: msg, Err: err}
}

func NewFatal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrFatal, Message: msg, Err: err}
}

func NewInternal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrInternal, Message: msg, Err: err}
}

// IsRetriable reports whether a pipeline task that failed with err should be
// retried. Validation, not-found, conflict and fatal errors are final; anything
// else (explicit TRANSIENT, or an unclassified infrastructure error such as a
// failed DB round trip) gets another attempt.
func IsRetriable(err error) bool {
	var de *DomainError
	if !stderrors.As(err, &de) {
		return true
	}
	switch de.Code {
	case ErrValidation, ErrNotFound, ErrConflict, ErrInvalidTransition, ErrForbidden, ErrUnauthorized, ErrFatal:
		return false
	}
	return true
}

// Code extracts the domain error code, or INTERNAL for foreign errors.
func Code(err error) string {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ErrInternal
}

// --- Order ---

func OrderNotFound(id string) *DomainError {
	return NewNotFound("order", id)
}

func OrderInvalidTransition(from, to string) *DomainError {
	return NewInvalidTransition(from, to)
}

func OrderNotOwner() *DomainError {
	return NewForbidden("you do not own this order")
}

func OrderAlreadyAssigned(droneID string) *DomainError {
	return NewConflict("order is already assigned to drone " + droneID)
}

// --- Drone ---

func DroneNotFound(id string) *DomainError {
	return NewNotFound("drone", id)
}

func DroneNotAvailable(reason string) *DomainError {
	return NewConflict("drone is not available: " + reason)
}

// --- Zone ---

func ZoneNotFound(id string) *DomainError {
	return NewNotFound("zone", id)
}

// --- Route ---

func RouteNotFound(id string) *DomainError {
	return NewNotFound("route", id)
}

func WaypointSequenceCorrupt(routeID string) *DomainError {
	return NewFatal("waypoint sequence gap detected for route "+routeID, nil)
}
