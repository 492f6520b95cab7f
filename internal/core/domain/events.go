package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// LocationSample is a single position report from a worker's device.
// Timestamp is client supplied and only used to order samples.
type LocationSample struct {
	WorkerID       string     `json:"worker_id"`
	Location       Coordinate `json:"location"`
	Timestamp      time.Time  `json:"timestamp"`
	AccuracyMeters *float64   `json:"accuracy_meters,omitempty"`
}

// Validate rejects samples that must not reach the geofence state machine.
func (s LocationSample) Validate() error {
	if strings.TrimSpace(s.WorkerID) == "" {
		return fmt.Errorf("%w: worker id is required", ErrInvalidSample)
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSample)
	}
	if s.AccuracyMeters != nil {
		if a := *s.AccuracyMeters; math.IsNaN(a) || a < 0 {
			return fmt.Errorf("%w: accuracy must be non-negative", ErrInvalidSample)
		}
	}
	return nil
}

// GeofenceEventKind enumerates geofence transitions and alerts.
type GeofenceEventKind string

const (
	GeofenceEntered      GeofenceEventKind = "ENTERED"
	GeofenceExited       GeofenceEventKind = "EXITED"
	GeofenceAutoClockOut GeofenceEventKind = "AUTO_CLOCK_OUT"
)

// GeofenceEvent is produced by the geofence tracker. AUTO_CLOCK_OUT is an
// alert only; it never closes a shift.
type GeofenceEvent struct {
	WorkerID       string            `json:"worker_id"`
	OrganizationID string            `json:"organization_id"`
	Kind           GeofenceEventKind `json:"kind"`
	Location       Coordinate        `json:"location"`
	Timestamp      time.Time         `json:"timestamp"`
	ShiftID        string            `json:"shift_id,omitempty"`
	Escalated      bool              `json:"escalated,omitempty"`
}

// EventKind names the realtime channels.
type EventKind string

const (
	EventShiftUpdated       EventKind = "shift_updated"
	EventStaffStatusChanged EventKind = "staff_status_changed"
	EventGeofence           EventKind = "geofence_event"
)

// AllEventKinds lists every realtime channel.
var AllEventKinds = []EventKind{EventShiftUpdated, EventStaffStatusChanged, EventGeofence}

// ShiftAction tells subscribers which transition produced a shift update.
type ShiftAction string

const (
	ShiftClockedIn  ShiftAction = "CLOCK_IN"
	ShiftClockedOut ShiftAction = "CLOCK_OUT"
)

// ShiftUpdated is the payload of EventShiftUpdated.
type ShiftUpdated struct {
	Action ShiftAction `json:"action"`
	Shift  Shift       `json:"shift"`
}

// StaffStatus is a worker's on-shift status.
type StaffStatus string

const (
	StaffOnShift  StaffStatus = "ON_SHIFT"
	StaffOffShift StaffStatus = "OFF_SHIFT"
)

// StaffStatusChanged is the payload of EventStaffStatusChanged.
type StaffStatusChanged struct {
	WorkerID string      `json:"worker_id"`
	Status   StaffStatus `json:"status"`
	ShiftID  string      `json:"shift_id"`
}

// Event is the envelope fanned out to realtime subscribers.
type Event struct {
	Kind           EventKind       `json:"kind"`
	OrganizationID string          `json:"organization_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(kind EventKind, orgID string, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Event{Kind: kind, OrganizationID: orgID, OccurredAt: at, Payload: data}, nil
}

// CanReceive reports whether p may be sent e: same organization, and
// geofence events only go to managers.
func CanReceive(p Principal, e *Event) bool {
	if e == nil || p.OrganizationID == "" || p.OrganizationID != e.OrganizationID {
		return false
	}
	if e.Kind == EventGeofence {
		return p.IsManager()
	}
	return true
}

// KindsFor returns the event kinds p is allowed to subscribe to.
func KindsFor(p Principal) []EventKind {
	if p.IsManager() {
		return AllEventKinds
	}
	return []EventKind{EventShiftUpdated, EventStaffStatusChanged}
}

// AllowedKinds narrows requested to the kinds p may receive. An empty request
// means every allowed kind.
func AllowedKinds(p Principal, requested []EventKind) []EventKind {
	allowed := KindsFor(p)
	if len(requested) == 0 {
		return allowed
	}
	out := make([]EventKind, 0, len(requested))
	for _, k := range requested {
		for _, a := range allowed {
			if k == a {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
