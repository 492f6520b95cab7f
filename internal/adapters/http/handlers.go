package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/usecases"
)

// clockBody is the request body of clock-in and clock-out.
type clockBody struct {
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	Note string   `json:"note"`
}

// perimeterBody is the request body of a perimeter update.
type perimeterBody struct {
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	RadiusMeters *float64 `json:"radius_meters"`
}

// locationBody is one device location report.
type locationBody struct {
	Lat       *float64   `json:"lat"`
	Lon       *float64   `json:"lon"`
	Timestamp *time.Time `json:"timestamp"`
	Accuracy  *float64   `json:"accuracy"`
}

// IngestResponse lists the geofence events a sample produced.
type IngestResponse struct {
	Events []domain.GeofenceEvent `json:"events"`
}

func parseClockRequest(c *fiber.Ctx) (usecases.ClockRequest, error) {
	var body clockBody
	if err := c.BodyParser(&body); err != nil {
		return usecases.ClockRequest{}, errors.New("invalid JSON body")
	}
	if body.Lat == nil || body.Lon == nil {
		return usecases.ClockRequest{}, errors.New("lat and lon are required")
	}
	return usecases.ClockRequest{
		WorkerID: principalOf(c).UserID,
		Location: domain.Coordinate{Lat: *body.Lat, Lon: *body.Lon},
		Note:     body.Note,
	}, nil
}

// ClockInHandler opens a shift for the calling worker.
func ClockInHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseClockRequest(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		shift, err := deps.Shifts.ClockIn(c.UserContext(), req)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(shift)
	}
}

// ClockOutHandler closes the calling worker's open shift.
func ClockOutHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseClockRequest(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		shift, err := deps.Shifts.ClockOut(c.UserContext(), req)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(shift)
	}
}

// ActiveShiftHandler returns the calling worker's open shift, or 404.
func ActiveShiftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		shift, err := deps.Shifts.ActiveShift(c.UserContext(), principalOf(c).UserID)
		if errors.Is(err, domain.ErrNoActiveShift) {
			return errNotFound(c, "no_active_shift", "you have no active shift")
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(shift)
	}
}

// ListShiftsHandler returns the calling worker's shift history, newest first.
func ListShiftsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c)
		shifts, total, err := deps.Shifts.History(c.UserContext(), principalOf(c).UserID, offset, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if shifts == nil {
			shifts = []domain.Shift{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: shifts, Pagination: pg})
	}
}

// GetPerimeterHandler returns an organization's perimeter. Callers may only
// read their own organization.
func GetPerimeterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := c.Params("id")
		if principalOf(c).OrganizationID != orgID {
			return errFromDomain(c, domain.ErrForbidden)
		}
		p, err := deps.Perimeters.Get(c.UserContext(), orgID)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(p)
	}
}

// UpdatePerimeterHandler replaces an organization's perimeter.
func UpdatePerimeterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body perimeterBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if body.Lat == nil || body.Lon == nil || body.RadiusMeters == nil {
			return errBadRequest(c, "lat, lon and radius_meters are required")
		}

		p, err := deps.Perimeters.Update(c.UserContext(), principalOf(c), c.Params("id"), usecases.PerimeterUpdate{
			Center:       domain.Coordinate{Lat: *body.Lat, Lon: *body.Lon},
			RadiusMeters: *body.RadiusMeters,
		})
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(p)
	}
}

// OnShiftHandler lists the open shifts of an organization for its managers.
func OnShiftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		shifts, err := deps.Shifts.OnShift(c.UserContext(), principalOf(c), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		if shifts == nil {
			shifts = []domain.Shift{}
		}
		return c.JSON(fiber.Map{"data": shifts, "count": len(shifts)})
	}
}

// IngestLocationHandler feeds a location report from the calling worker's
// device into the geofence tracker.
func IngestLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body locationBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if body.Lat == nil || body.Lon == nil {
			return errBadRequest(c, "lat and lon are required")
		}

		sample := domain.LocationSample{
			WorkerID:       principalOf(c).UserID,
			Location:       domain.Coordinate{Lat: *body.Lat, Lon: *body.Lon},
			Timestamp:      time.Now().UTC(),
			AccuracyMeters: body.Accuracy,
		}
		if body.Timestamp != nil {
			sample.Timestamp = *body.Timestamp
		}

		events, err := deps.Tracker.Ingest(c.UserContext(), sample)
		if err != nil {
			return errFromDomain(c, err)
		}
		if events == nil {
			events = []domain.GeofenceEvent{}
		}
		return c.Status(fiber.StatusAccepted).JSON(IngestResponse{Events: events})
	}
}

// WorkerLocationHandler returns a worker's last known location to a manager
// of the worker's organization.
func WorkerLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sample, err := deps.Tracker.WorkerLocation(c.UserContext(), principalOf(c), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(sample)
	}
}
