package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// OrganizationRepo implements ports.OrganizationRepository and
// ports.WorkerRepository with pgx.
type OrganizationRepo struct {
	db *DB
}

// NewOrganizationRepo creates a new OrganizationRepo.
func NewOrganizationRepo(db *DB) *OrganizationRepo {
	return &OrganizationRepo{db: db}
}

// GetPerimeter returns the configured perimeter of orgID.
func (r *OrganizationRepo) GetPerimeter(ctx context.Context, orgID string) (*domain.Perimeter, error) {
	var (
		lat, lon, radius *float64
		updatedAt        *time.Time
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT perimeter_lat, perimeter_lon, perimeter_radius_m, perimeter_updated_at
		FROM organizations WHERE id = $1
	`, orgID).Scan(&lat, &lon, &radius, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", orgID, domain.ErrOrganizationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get perimeter: %w", err)
	}
	if lat == nil || lon == nil || radius == nil {
		return nil, fmt.Errorf("organization %s has no perimeter: %w", orgID, domain.ErrOrganizationNotFound)
	}

	p := &domain.Perimeter{
		OrganizationID: orgID,
		Center:         domain.Coordinate{Lat: *lat, Lon: *lon},
		RadiusMeters:   *radius,
	}
	if updatedAt != nil {
		p.UpdatedAt = *updatedAt
	}
	return p, nil
}

// UpdatePerimeter replaces the perimeter of p.OrganizationID.
func (r *OrganizationRepo) UpdatePerimeter(ctx context.Context, p *domain.Perimeter) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE organizations
		SET perimeter_lat = $2, perimeter_lon = $3, perimeter_radius_m = $4, perimeter_updated_at = $5
		WHERE id = $1
	`, p.OrganizationID, p.Center.Lat, p.Center.Lon, p.RadiusMeters, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update perimeter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization %s: %w", p.OrganizationID, domain.ErrOrganizationNotFound)
	}
	return nil
}

// GetOrganizationID resolves the organization a worker belongs to.
func (r *OrganizationRepo) GetOrganizationID(ctx context.Context, workerID string) (string, error) {
	var orgID string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT organization_id FROM workers WHERE id = $1`, workerID,
	).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("worker %s: %w", workerID, domain.ErrOrganizationNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get worker organization: %w", err)
	}
	return orgID, nil
}
