package errors

import (
	"fmt"

	"github.com/jafarshop/easyorders/internal/domain"
)

// ErrNotFound is returned when a resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized is returned when the caller cannot be authenticated
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// ErrForbidden is returned when the caller is authenticated but not allowed,
// e.g. its network address is not on the allowlist
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	if e.Message == "" {
		return "forbidden"
	}
	return e.Message
}

// ErrInvalidPayload is returned when an inbound payload is missing required data
type ErrInvalidPayload struct {
	Field   string
	Message string
}

func (e *ErrInvalidPayload) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Message)
}

// ErrUpstreamUnavailable is returned when the EasyOrders API fails or times out.
// StatusCode is zero for transport errors.
type ErrUpstreamUnavailable struct {
	StatusCode int
	Err        error
}

func (e *ErrUpstreamUnavailable) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("easyorders API error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("easyorders API unavailable: %v", e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error {
	return e.Err
}

// ErrDuplicate is returned when a unique constraint rejects an insert
type ErrDuplicate struct {
	Resource   string
	Constraint string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("duplicate %s (%s)", e.Resource, e.Constraint)
}

// ErrInvalidStateTransition is returned when a temp order cannot move to the requested status
type ErrInvalidStateTransition struct {
	From domain.TempOrderStatus
	To   domain.TempOrderStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}
