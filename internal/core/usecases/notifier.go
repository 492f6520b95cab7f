package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
)

// Notifier turns ledger and tracker outcomes into realtime events.
// Publishing is best-effort: failures are logged and counted, never returned,
// since the state change they describe has already been committed.
type Notifier struct {
	publisher ports.EventPublisher
	now       func() time.Time
}

// NewNotifier creates a Notifier. A nil publisher disables fan-out.
func NewNotifier(publisher ports.EventPublisher) *Notifier {
	return &Notifier{publisher: publisher, now: time.Now}
}

// ShiftClockedIn emits shift_updated and staff_status_changed(ON_SHIFT).
func (n *Notifier) ShiftClockedIn(ctx context.Context, shift *domain.Shift) {
	n.shiftChanged(ctx, shift, domain.ShiftClockedIn, domain.StaffOnShift)
}

// ShiftClockedOut emits shift_updated and staff_status_changed(OFF_SHIFT).
func (n *Notifier) ShiftClockedOut(ctx context.Context, shift *domain.Shift) {
	n.shiftChanged(ctx, shift, domain.ShiftClockedOut, domain.StaffOffShift)
}

// Geofence emits a geofence_event; subscribers without manager capability never see it.
func (n *Notifier) Geofence(ctx context.Context, ev domain.GeofenceEvent) {
	n.publish(ctx, domain.EventGeofence, ev.OrganizationID, ev)
}

func (n *Notifier) shiftChanged(ctx context.Context, shift *domain.Shift, action domain.ShiftAction, status domain.StaffStatus) {
	n.publish(ctx, domain.EventShiftUpdated, shift.OrganizationID, domain.ShiftUpdated{
		Action: action,
		Shift:  *shift,
	})
	n.publish(ctx, domain.EventStaffStatusChanged, shift.OrganizationID, domain.StaffStatusChanged{
		WorkerID: shift.WorkerID,
		Status:   status,
		ShiftID:  shift.ID,
	})
}

func (n *Notifier) publish(ctx context.Context, kind domain.EventKind, orgID string, payload any) {
	if n == nil || n.publisher == nil {
		return
	}

	event, err := domain.NewEvent(kind, orgID, n.now(), payload)
	if err == nil {
		err = n.publisher.Publish(ctx, event)
	}
	metrics.EventsPublished.WithLabelValues(string(kind), metrics.Result(err)).Inc()
	if err != nil {
		slog.ErrorContext(ctx, "publish realtime event failed",
			"kind", kind, "organization_id", orgID, "error", err)
	}
}
