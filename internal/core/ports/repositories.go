package ports

import (
	"context"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// ShiftRepository persists shifts. Implementations must guarantee at most one
// open shift per worker even under concurrent writers.
type ShiftRepository interface {
	// FindOpen returns the worker's open shift, or nil when there is none.
	FindOpen(ctx context.Context, workerID string) (*domain.Shift, error)
	// Create stores a new open shift. It returns domain.ErrAlreadyClockedIn
	// if the worker already has one.
	Create(ctx context.Context, shift *domain.Shift) error
	// Close sets the clock-out of shiftID only if it is still open, and
	// returns domain.ErrNoActiveShift otherwise.
	Close(ctx context.Context, shiftID string, out domain.ClockStamp, totalHours float64) error
	// ListByWorker returns a page of shifts, newest first, plus the total count.
	ListByWorker(ctx context.Context, workerID string, offset, limit int) ([]domain.Shift, int, error)
	// ListOpenByOrganization returns all open shifts in an organization.
	ListOpenByOrganization(ctx context.Context, orgID string) ([]domain.Shift, error)
}

// OrganizationRepository persists organizations and their perimeters.
type OrganizationRepository interface {
	// GetPerimeter returns domain.ErrOrganizationNotFound when the organization
	// does not exist or has no perimeter configured.
	GetPerimeter(ctx context.Context, orgID string) (*domain.Perimeter, error)
	UpdatePerimeter(ctx context.Context, perimeter *domain.Perimeter) error
}

// WorkerRepository resolves worker membership.
type WorkerRepository interface {
	// GetOrganizationID returns domain.ErrOrganizationNotFound when the worker
	// is unknown or belongs to no organization.
	GetOrganizationID(ctx context.Context, workerID string) (string, error)
}
