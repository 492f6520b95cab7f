package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
	"github.com/samirrijal/shiftfence/internal/pkg/telemetry"
)

// DefaultPerimeterCacheTTL is used when NewPerimeterService gets a non-positive TTL.
const DefaultPerimeterCacheTTL = 300

// PerimeterSource yields the current perimeter of an organization.
type PerimeterSource interface {
	Get(ctx context.Context, orgID string) (*domain.Perimeter, error)
}

// PerimeterService reads and updates facility perimeters. Reads go through
// the cache and may be briefly stale after an update.
type PerimeterService struct {
	orgs       ports.OrganizationRepository
	cache      ports.CacheService
	ttlSeconds int
	group      singleflight.Group
	now        func() time.Time
}

// NewPerimeterService creates a new PerimeterService. cache may be nil.
func NewPerimeterService(orgs ports.OrganizationRepository, cache ports.CacheService, ttlSeconds int) *PerimeterService {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultPerimeterCacheTTL
	}
	return &PerimeterService{orgs: orgs, cache: cache, ttlSeconds: ttlSeconds, now: time.Now}
}

func perimeterCacheKey(orgID string) string {
	return "perimeter:org:" + orgID
}

// Get returns the perimeter of orgID.
func (s *PerimeterService) Get(ctx context.Context, orgID string) (*domain.Perimeter, error) {
	if orgID == "" {
		return nil, domain.ErrOrganizationNotFound
	}

	cacheKey := perimeterCacheKey(orgID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p domain.Perimeter
			if err := json.Unmarshal(data, &p); err == nil {
				metrics.CacheHits.WithLabelValues("perimeter").Inc()
				return &p, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("perimeter").Inc()
	}

	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		p, err := s.orgs.GetPerimeter(ctx, orgID)
		if err != nil {
			return nil, domain.Upstream("get perimeter", err)
		}
		if s.cache != nil {
			if data, err := json.Marshal(p); err == nil {
				_ = s.cache.Set(ctx, cacheKey, data, s.ttlSeconds)
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers sharing a flight must not share a pointer.
	p := *v.(*domain.Perimeter)
	return &p, nil
}

// PerimeterUpdate is the typed input of Update.
type PerimeterUpdate struct {
	Center       domain.Coordinate
	RadiusMeters float64
}

// Update replaces the perimeter of orgID. Only managers of that organization may call it.
func (s *PerimeterService) Update(ctx context.Context, principal domain.Principal, orgID string, in PerimeterUpdate) (p *domain.Perimeter, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanUpdatePerimeter,
		trace.WithAttributes(attribute.String("organization.id", orgID)))
	defer func() { endSpan(span, err) }()

	if !principal.ManagesOrganization(orgID) {
		return nil, fmt.Errorf("update perimeter of %s: %w", orgID, domain.ErrForbidden)
	}

	p = &domain.Perimeter{
		OrganizationID: orgID,
		Center:         in.Center,
		RadiusMeters:   in.RadiusMeters,
		UpdatedAt:      s.now(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.orgs.UpdatePerimeter(ctx, p); err != nil {
		return nil, domain.Upstream("update perimeter", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, perimeterCacheKey(orgID)); err != nil {
			slog.WarnContext(ctx, "perimeter cache invalidation failed",
				"organization_id", orgID, "error", err)
		}
	}

	slog.InfoContext(ctx, "perimeter updated",
		"organization_id", orgID, "updated_by", principal.UserID,
		"lat", p.Center.Lat, "lon", p.Center.Lon, "radius_m", p.RadiusMeters)
	return p, nil
}

// resolveWorkerPerimeter finds the organization of workerID and its perimeter.
func resolveWorkerPerimeter(ctx context.Context, workers ports.WorkerRepository, perimeters PerimeterSource, workerID string) (string, *domain.Perimeter, error) {
	orgID, err := workers.GetOrganizationID(ctx, workerID)
	if err != nil {
		return "", nil, domain.Upstream("resolve worker organization", err)
	}
	p, err := perimeters.Get(ctx, orgID)
	if err != nil {
		return "", nil, err
	}
	return orgID, p, nil
}
