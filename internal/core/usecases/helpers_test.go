package usecases_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samirrijal/shiftfence/internal/adapters/memory"
	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/usecases"
)

var (
	facility = domain.Coordinate{Lat: 40.7128, Lon: -74.0060}
	// ~800m north of facility.
	uptown = domain.Coordinate{Lat: 40.7200, Lon: -74.0060}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// --- Recording EventPublisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

// --- Mock ShiftRepository wrapping the memory store ---

type mockShiftRepo struct {
	*memory.Store
	findOpenFn     func(ctx context.Context, workerID string) (*domain.Shift, error)
	listByWorkerFn func(ctx context.Context, workerID string, offset, limit int) ([]domain.Shift, int, error)
}

func (m *mockShiftRepo) FindOpen(ctx context.Context, workerID string) (*domain.Shift, error) {
	if m.findOpenFn != nil {
		return m.findOpenFn(ctx, workerID)
	}
	return m.Store.FindOpen(ctx, workerID)
}

func (m *mockShiftRepo) ListByWorker(ctx context.Context, workerID string, offset, limit int) ([]domain.Shift, int, error) {
	if m.listByWorkerFn != nil {
		return m.listByWorkerFn(ctx, workerID, offset, limit)
	}
	return m.Store.ListByWorker(ctx, workerID, offset, limit)
}

// fixture wires a ledger, a tracker and their collaborators over an
// in-memory store holding org-a (radius 100m around facility) with worker w1.
type fixture struct {
	store      *memory.Store
	locations  *memory.LocationStore
	publisher  *recordingPublisher
	clock      *fakeClock
	perimeters *usecases.PerimeterService
	ledger     *usecases.ShiftService
	tracker    *usecases.GeofenceTracker
}

func newFixture(opts ...usecases.TrackerOption) *fixture {
	f := &fixture{
		store:     memory.NewStore(),
		locations: memory.NewLocationStore(),
		publisher: &recordingPublisher{},
		clock:     newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.store.AddOrganization("org-a", &domain.Perimeter{Center: facility, RadiusMeters: 100})
	f.store.AddOrganization("org-b", &domain.Perimeter{Center: uptown, RadiusMeters: 100})
	f.store.AddWorker("w1", "org-a")
	f.store.AddWorker("w2", "org-a")

	var n int
	var idMu sync.Mutex
	newID := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		n++
		return fmt.Sprintf("shift-%d", n)
	}

	notifier := usecases.NewNotifier(f.publisher)
	f.perimeters = usecases.NewPerimeterService(f.store, nil, 0)
	f.ledger = usecases.NewShiftService(f.store, f.store, f.perimeters, notifier,
		usecases.WithClock(f.clock.Now), usecases.WithIDGenerator(newID))
	f.tracker = usecases.NewGeofenceTracker(f.store, f.perimeters, f.store, notifier,
		append([]usecases.TrackerOption{usecases.WithLocationStore(f.locations)}, opts...)...)
	return f
}

func sampleAt(worker string, c domain.Coordinate, ts time.Time) domain.LocationSample {
	return domain.LocationSample{WorkerID: worker, Location: c, Timestamp: ts}
}
