package domain

import (
	"fmt"
	"math"
	"time"
)

// Role is the capability an authenticated principal holds inside its organization.
type Role string

const (
	RoleWorker  Role = "WORKER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Principal is the identity resolved by the gateway before the core is invoked.
type Principal struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           Role   `json:"role"`
}

// IsManager reports whether the principal may manage its organization.
func (p Principal) IsManager() bool {
	return p.Role == RoleManager || p.Role == RoleAdmin
}

// ManagesOrganization reports whether p is a manager of orgID.
func (p Principal) ManagesOrganization(orgID string) bool {
	return p.IsManager() && p.OrganizationID != "" && p.OrganizationID == orgID
}

// ClockStamp records one end of a shift. Time is always server time.
type ClockStamp struct {
	Time     time.Time  `json:"time"`
	Location Coordinate `json:"location"`
	Note     string     `json:"note,omitempty"`
}

// Shift is a worker's paid period on site. A shift with no ClockOut is open.
type Shift struct {
	ID             string      `json:"id"`
	WorkerID       string      `json:"worker_id"`
	OrganizationID string      `json:"organization_id"`
	ClockIn        ClockStamp  `json:"clock_in"`
	ClockOut       *ClockStamp `json:"clock_out,omitempty"`
	TotalHours     *float64    `json:"total_hours,omitempty"`
}

// IsOpen reports whether the shift has not been clocked out.
func (s *Shift) IsOpen() bool {
	return s.ClockOut == nil
}

// Close sets the clock-out stamp and total hours. It fails if the shift is
// already closed or if out does not come strictly after the clock-in time.
func (s *Shift) Close(out ClockStamp) error {
	if !s.IsOpen() {
		return fmt.Errorf("close shift %s: %w", s.ID, ErrNoActiveShift)
	}
	if !out.Time.After(s.ClockIn.Time) {
		return fmt.Errorf("close shift %s: %w: clock-out %s not after clock-in %s",
			s.ID, ErrInvalidRequest, out.Time.Format(time.RFC3339Nano), s.ClockIn.Time.Format(time.RFC3339Nano))
	}
	hours := ShiftHours(s.ClockIn.Time, out.Time)
	s.ClockOut = &out
	s.TotalHours = &hours
	return nil
}

// ShiftHours converts the elapsed milliseconds between in and out into hours
// rounded to two decimals. Negative spans yield 0.
func ShiftHours(in, out time.Time) float64 {
	ms := out.Sub(in).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return math.Round(float64(ms)/3600000*100) / 100
}
