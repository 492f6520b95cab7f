package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/samirrijal/shiftfence/internal/pkg/geospatial"
)

// MaxPerimeterRadiusMeters caps facility perimeters at 50km.
const MaxPerimeterRadiusMeters = 50000.0

// Coordinate is a WGS 84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate rejects NaN, infinite and out-of-range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: not a number", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90,90]", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180,180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// Perimeter is the circular geofence around an organization's facility.
type Perimeter struct {
	OrganizationID string     `json:"organization_id"`
	Center         Coordinate `json:"center"`
	RadiusMeters   float64    `json:"radius_meters"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Validate checks the center and that the radius is positive and bounded.
func (p Perimeter) Validate() error {
	if err := p.Center.Validate(); err != nil {
		return err
	}
	if math.IsNaN(p.RadiusMeters) || p.RadiusMeters <= 0 || p.RadiusMeters > MaxPerimeterRadiusMeters {
		return fmt.Errorf("%w: radius must be in (0, %.0f] meters, got %f",
			ErrInvalidPerimeter, MaxPerimeterRadiusMeters, p.RadiusMeters)
	}
	return nil
}

// DistanceMeters returns the great-circle distance between a and b.
// Callers must validate both coordinates first.
func DistanceMeters(a, b Coordinate) float64 {
	return geospatial.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// IsWithinPerimeter reports whether point lies inside the perimeter.
// The boundary itself counts as inside.
func IsWithinPerimeter(point Coordinate, perimeter Perimeter) bool {
	return DistanceMeters(point, perimeter.Center) <= perimeter.RadiusMeters
}

// CheckPerimeter returns an *OutsidePerimeterError when point is outside.
func CheckPerimeter(point Coordinate, perimeter Perimeter) error {
	d := DistanceMeters(point, perimeter.Center)
	if d <= perimeter.RadiusMeters {
		return nil
	}
	return &OutsidePerimeterError{DistanceMeters: d, RadiusMeters: perimeter.RadiusMeters}
}
