package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

func TestLocationSample_Validate(t *testing.T) {
	now := time.Now()
	neg := -1.0
	good := domain.LocationSample{WorkerID: "w1", Location: domain.Coordinate{Lat: 1, Lon: 2}, Timestamp: now}
	require.NoError(t, good.Validate())

	cases := map[string]domain.LocationSample{
		"missing worker":    {Location: good.Location, Timestamp: now},
		"bad coordinate":    {WorkerID: "w1", Location: domain.Coordinate{Lat: 100}, Timestamp: now},
		"missing timestamp": {WorkerID: "w1", Location: good.Location},
		"negative accuracy": {WorkerID: "w1", Location: good.Location, Timestamp: now, AccuracyMeters: &neg},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Validate(), domain.ErrInvalidSample)
		})
	}
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ev, err := domain.NewEvent(domain.EventStaffStatusChanged, "org-1", at, domain.StaffStatusChanged{
		WorkerID: "w1", Status: domain.StaffOnShift, ShiftID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EventStaffStatusChanged, ev.Kind)

	var payload domain.StaffStatusChanged
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, domain.StaffOnShift, payload.Status)
}

func TestCanReceive(t *testing.T) {
	worker := domain.Principal{UserID: "w", OrganizationID: "org-1", Role: domain.RoleWorker}
	manager := domain.Principal{UserID: "m", OrganizationID: "org-1", Role: domain.RoleManager}
	outsider := domain.Principal{UserID: "x", OrganizationID: "org-2", Role: domain.RoleManager}

	shift := &domain.Event{Kind: domain.EventShiftUpdated, OrganizationID: "org-1"}
	geo := &domain.Event{Kind: domain.EventGeofence, OrganizationID: "org-1"}

	assert.True(t, domain.CanReceive(worker, shift))
	assert.False(t, domain.CanReceive(worker, geo))
	assert.True(t, domain.CanReceive(manager, geo))
	assert.False(t, domain.CanReceive(outsider, shift))
	assert.False(t, domain.CanReceive(outsider, geo))
	assert.False(t, domain.CanReceive(domain.Principal{}, shift))

	assert.Len(t, domain.KindsFor(worker), 2)
	assert.ElementsMatch(t, domain.AllEventKinds, domain.KindsFor(manager))
}

func TestAllowedKinds(t *testing.T) {
	worker := domain.Principal{UserID: "w1", OrganizationID: "org-a", Role: domain.RoleWorker}
	manager := domain.Principal{UserID: "m1", OrganizationID: "org-a", Role: domain.RoleManager}

	assert.ElementsMatch(t, domain.KindsFor(worker), domain.AllowedKinds(worker, nil))
	assert.Empty(t, domain.AllowedKinds(worker, []domain.EventKind{domain.EventGeofence}))
	assert.Equal(t,
		[]domain.EventKind{domain.EventGeofence},
		domain.AllowedKinds(manager, []domain.EventKind{domain.EventGeofence, "unknown"}))
}
