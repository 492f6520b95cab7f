package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
)

// ReminderActivities holds the activity implementations for the reminder workflow.
type ReminderActivities struct {
	Shifts    ports.ShiftRepository
	Publisher ports.EventPublisher
	Now       func() time.Time
}

// IsShiftOpen reports whether shiftID is still the worker's open shift.
func (a *ReminderActivities) IsShiftOpen(ctx context.Context, workerID, shiftID string) (bool, error) {
	open, err := a.Shifts.FindOpen(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("find open shift of %s: %w", workerID, err)
	}
	return open != nil && open.ID == shiftID, nil
}

// EscalateAutoClockOut publishes an escalated AUTO_CLOCK_OUT geofence event.
// A failed publish is returned so Temporal retries the activity.
func (a *ReminderActivities) EscalateAutoClockOut(ctx context.Context, input ReminderInput) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	at := now()
	event, err := domain.NewEvent(domain.EventGeofence, input.OrganizationID, at, domain.GeofenceEvent{
		WorkerID:       input.WorkerID,
		OrganizationID: input.OrganizationID,
		Kind:           domain.GeofenceAutoClockOut,
		Location:       input.Location,
		Timestamp:      at,
		ShiftID:        input.ShiftID,
		Escalated:      true,
	})
	if err == nil {
		err = a.Publisher.Publish(ctx, event)
	}
	metrics.EventsPublished.WithLabelValues(string(domain.EventGeofence), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("publish escalation for shift %s: %w", input.ShiftID, err)
	}

	slog.InfoContext(ctx, "auto clock-out escalated",
		"worker_id", input.WorkerID, "shift_id", input.ShiftID,
		"outside_for", at.Sub(input.ExitedAt).Round(time.Second).String())
	return nil
}
