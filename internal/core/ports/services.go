package ports

import (
	"context"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// EventPublisher fans realtime events out to interested subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// EventSubscriber delivers the events a principal may see. Delivery is
// at-most-once; the returned function cancels the subscription.
type EventSubscriber interface {
	Subscribe(ctx context.Context, principal domain.Principal, kinds []domain.EventKind, handler func(ctx context.Context, event *domain.Event)) (unsubscribe func(), err error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// LocationStore keeps the latest known location per worker.
type LocationStore interface {
	SaveLastKnown(ctx context.Context, orgID string, sample domain.LocationSample) error
	// LastKnown returns domain.ErrNotFound when nothing is stored.
	LastKnown(ctx context.Context, workerID string) (*domain.LocationSample, string, error)
}

// ReminderScheduler schedules follow-up on an auto-clock-out alert.
type ReminderScheduler interface {
	ScheduleAutoClockOutReminder(ctx context.Context, event domain.GeofenceEvent) error
	// CancelAutoClockOutReminder stops the pending reminder of shiftID. It is
	// not an error when no reminder is running.
	CancelAutoClockOutReminder(ctx context.Context, shiftID string) error
}
