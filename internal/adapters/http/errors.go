package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // outside_perimeter, already_clocked_in, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, code, msg string) error {
	return newError(c, fiber.StatusNotFound, code, msg)
}

// errUnauthorized returns a 401 error.
func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnauthorized, "unauthorized", msg)
}

// errorStatus maps a domain error onto an HTTP status, a stable code and the
// message shown to the caller. Internal failures never leak their cause.
func errorStatus(err error) (int, string, string) {
	var outside *domain.OutsidePerimeterError
	switch {
	case errors.As(err, &outside):
		return fiber.StatusForbidden, "outside_perimeter",
			fmt.Sprintf("you are %.0fm from the facility; clock actions require being within %.0fm",
				outside.DistanceMeters, outside.RadiusMeters)
	case errors.Is(err, domain.ErrStaleSample):
		return fiber.StatusUnprocessableEntity, "stale_sample", err.Error()
	case errors.Is(err, domain.ErrInvalidPerimeter):
		return fiber.StatusUnprocessableEntity, "invalid_perimeter", err.Error()
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return fiber.StatusBadRequest, "invalid_coordinate", err.Error()
	case errors.Is(err, domain.ErrInvalidSample):
		return fiber.StatusBadRequest, "invalid_sample", err.Error()
	case errors.Is(err, domain.ErrInvalidRequest):
		return fiber.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, domain.ErrAlreadyClockedIn):
		return fiber.StatusConflict, "already_clocked_in", "you already have an active shift"
	case errors.Is(err, domain.ErrNoActiveShift):
		return fiber.StatusConflict, "no_active_shift", "you have no active shift"
	case errors.Is(err, domain.ErrOrganizationNotFound):
		return fiber.StatusNotFound, "organization_not_found", "organization or facility perimeter not found"
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, "forbidden", "insufficient permissions"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return fiber.StatusServiceUnavailable, "upstream_unavailable", "a backing service is unavailable, retry later"
	default:
		return fiber.StatusInternalServerError, "internal_error", "internal error"
	}
}

// errFromDomain writes the response for err returned by a use case.
func errFromDomain(c *fiber.Ctx, err error) error {
	status, code, msg := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		LoggerFromCtx(c.UserContext()).Error("request failed",
			"path", c.Path(), "code", code, "error", err)
	}
	return newError(c, status, code, msg)
}
