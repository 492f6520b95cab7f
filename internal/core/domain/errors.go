package domain

import (
	"errors"
	"fmt"
)

// Validation errors are raised at the boundary and never reach a state machine.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidSample     = errors.New("invalid location sample")
	ErrInvalidPerimeter  = errors.New("invalid perimeter")
	ErrStaleSample       = errors.New("stale location sample")
	ErrInvalidRequest    = errors.New("invalid request")
)

// Business-rule errors are expected and user facing.
var (
	ErrAlreadyClockedIn     = errors.New("already clocked in")
	ErrNoActiveShift        = errors.New("no active shift")
	ErrOutsidePerimeter     = errors.New("outside facility perimeter")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
)

// ErrUpstreamUnavailable marks failures of the record store or other collaborators.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// OutsidePerimeterError reports how far a worker was from the facility.
type OutsidePerimeterError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutsidePerimeterError) Error() string {
	return fmt.Sprintf("%s: %.0fm from center, perimeter radius is %.0fm",
		ErrOutsidePerimeter, e.DistanceMeters, e.RadiusMeters)
}

func (e *OutsidePerimeterError) Unwrap() error { return ErrOutsidePerimeter }

// UpstreamError wraps a collaborator failure for operation Op.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrUpstreamUnavailable, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Upstream wraps err as an *UpstreamError unless it already carries a domain error.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classify(err) != ClassInternal {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// ErrorClass groups errors by how callers should react.
type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassBusiness   ErrorClass = "business"
	ClassUpstream   ErrorClass = "upstream"
	ClassInternal   ErrorClass = "internal"
)

// Classify returns the class of err. Unknown errors are internal.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCoordinate), errors.Is(err, ErrInvalidSample),
		errors.Is(err, ErrInvalidPerimeter), errors.Is(err, ErrStaleSample),
		errors.Is(err, ErrInvalidRequest):
		return ClassValidation
	case errors.Is(err, ErrAlreadyClockedIn), errors.Is(err, ErrNoActiveShift),
		errors.Is(err, ErrOutsidePerimeter), errors.Is(err, ErrOrganizationNotFound),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		return ClassBusiness
	case errors.Is(err, ErrUpstreamUnavailable):
		return ClassUpstream
	default:
		return ClassInternal
	}
}
