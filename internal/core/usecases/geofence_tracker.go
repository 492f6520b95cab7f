package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
	"github.com/samirrijal/shiftfence/internal/pkg/telemetry"
)

// FenceStatus is a worker's position relative to its organization's perimeter.
type FenceStatus int

const (
	StatusUnknown FenceStatus = iota
	StatusOutside
	StatusInside
)

func (s FenceStatus) String() string {
	switch s {
	case StatusOutside:
		return "OUTSIDE"
	case StatusInside:
		return "INSIDE"
	default:
		return "UNKNOWN"
	}
}

// DefaultStaleTolerance is how far behind the newest processed sample a new
// sample may be before it is rejected.
const DefaultStaleTolerance = 5 * time.Second

// DefaultIdleTTL is how long a worker's state is kept without new samples.
const DefaultIdleTTL = 12 * time.Hour

type workerTrack struct {
	mu     sync.Mutex
	status FenceStatus
	orgID  string
	last   *domain.LocationSample
	// newest is the latest sample timestamp accepted so far. It never moves
	// backwards, so out-of-order samples cannot walk the stream into the past.
	newest time.Time

	// seen is guarded by GeofenceTracker.mu.
	seen time.Time
}

// GeofenceTracker runs the per-worker INSIDE/OUTSIDE state machine over the
// stream of location samples.
type GeofenceTracker struct {
	workers        ports.WorkerRepository
	perimeters     PerimeterSource
	shifts         ports.ShiftRepository
	notifier       *Notifier
	locations      ports.LocationStore
	reminders      ports.ReminderScheduler
	staleTolerance time.Duration
	idleTTL        time.Duration
	now            func() time.Time

	mu        sync.Mutex
	tracks    map[string]*workerTrack
	lastSweep time.Time
}

// TrackerOption customises a GeofenceTracker.
type TrackerOption func(*GeofenceTracker)

// WithLocationStore persists the last known location of every accepted sample.
func WithLocationStore(store ports.LocationStore) TrackerOption {
	return func(t *GeofenceTracker) { t.locations = store }
}

// WithReminderScheduler schedules follow-up for AUTO_CLOCK_OUT alerts.
func WithReminderScheduler(s ports.ReminderScheduler) TrackerOption {
	return func(t *GeofenceTracker) { t.reminders = s }
}

// WithStaleTolerance sets how far out of order a sample may arrive.
func WithStaleTolerance(d time.Duration) TrackerOption {
	return func(t *GeofenceTracker) {
		if d >= 0 {
			t.staleTolerance = d
		}
	}
}

// WithIdleTTL sets how long a worker's state survives without samples. Evicted
// workers start over from an unknown status.
func WithIdleTTL(d time.Duration) TrackerOption {
	return func(t *GeofenceTracker) {
		if d > 0 {
			t.idleTTL = d
		}
	}
}

// WithTrackerClock replaces the wall clock used for idle eviction.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *GeofenceTracker) { t.now = now }
}

// NewGeofenceTracker creates a new GeofenceTracker.
func NewGeofenceTracker(
	workers ports.WorkerRepository,
	perimeters PerimeterSource,
	shifts ports.ShiftRepository,
	notifier *Notifier,
	opts ...TrackerOption,
) *GeofenceTracker {
	t := &GeofenceTracker{
		workers:        workers,
		perimeters:     perimeters,
		shifts:         shifts,
		notifier:       notifier,
		staleTolerance: DefaultStaleTolerance,
		idleTTL:        DefaultIdleTTL,
		now:            time.Now,
		tracks:         make(map[string]*workerTrack),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *GeofenceTracker) track(workerID string) *workerTrack {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweepLocked(now)
	tr, ok := t.tracks[workerID]
	if !ok {
		tr = &workerTrack{}
		t.tracks[workerID] = tr
		metrics.TrackedWorkers.Set(float64(len(t.tracks)))
	}
	tr.seen = now
	return tr
}

// sweepLocked drops workers idle for longer than idleTTL. It runs at most
// once per quarter TTL. t.mu must be held.
func (t *GeofenceTracker) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.idleTTL/4 {
		return
	}
	t.lastSweep = now
	for id, tr := range t.tracks {
		if now.Sub(tr.seen) > t.idleTTL {
			delete(t.tracks, id)
		}
	}
	metrics.TrackedWorkers.Set(float64(len(t.tracks)))
}

// Ingest feeds one sample into the worker's state machine and returns the
// events it produced. Invalid and stale samples are dropped without touching
// state. Samples of one worker are processed one at a time, in call order.
func (t *GeofenceTracker) Ingest(ctx context.Context, sample domain.LocationSample) (events []domain.GeofenceEvent, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanIngestSample,
		trace.WithAttributes(attribute.String("worker.id", sample.WorkerID)))
	defer func() { endSpan(span, err) }()

	if err := sample.Validate(); err != nil {
		metrics.SamplesDropped.WithLabelValues("invalid").Inc()
		slog.WarnContext(ctx, "location sample dropped",
			"worker_id", sample.WorkerID, "reason", "invalid", "error", err)
		return nil, err
	}

	tr := t.track(sample.WorkerID)
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if !tr.newest.IsZero() && sample.Timestamp.Before(tr.newest.Add(-t.staleTolerance)) {
		metrics.SamplesDropped.WithLabelValues("stale").Inc()
		slog.WarnContext(ctx, "location sample dropped",
			"worker_id", sample.WorkerID, "reason", "stale",
			"timestamp", sample.Timestamp, "newest_timestamp", tr.newest)
		return nil, fmt.Errorf("%w: %s is older than newest sample at %s", domain.ErrStaleSample,
			sample.Timestamp.Format(time.RFC3339Nano), tr.newest.Format(time.RFC3339Nano))
	}

	orgID, perimeter, err := resolveWorkerPerimeter(ctx, t.workers, t.perimeters, sample.WorkerID)
	if err != nil {
		metrics.SamplesDropped.WithLabelValues("unresolved").Inc()
		slog.WarnContext(ctx, "location sample dropped",
			"worker_id", sample.WorkerID, "reason", "unresolved", "error", err)
		return nil, err
	}

	// A worker moved to another organization starts over.
	if tr.orgID != orgID {
		tr.status = StatusUnknown
		tr.orgID = orgID
	}

	next := StatusOutside
	if domain.IsWithinPerimeter(sample.Location, *perimeter) {
		next = StatusInside
	}
	prev := tr.status
	tr.status = next
	s := sample
	tr.last = &s
	if sample.Timestamp.After(tr.newest) {
		tr.newest = sample.Timestamp
	}
	metrics.SamplesIngested.Inc()

	switch {
	case prev == StatusOutside && next == StatusInside:
		events = append(events, t.event(sample, orgID, domain.GeofenceEntered))
		t.cancelReminder(ctx, sample.WorkerID)
	case prev == StatusInside && next == StatusOutside:
		events = append(events, t.event(sample, orgID, domain.GeofenceExited))
		if alert, ok := t.autoClockOut(ctx, sample, orgID); ok {
			events = append(events, alert)
		}
	}

	t.saveLastKnown(ctx, orgID, sample)

	for _, ev := range events {
		metrics.GeofenceTransitions.WithLabelValues(string(ev.Kind)).Inc()
		slog.InfoContext(ctx, "geofence event",
			"worker_id", ev.WorkerID, "organization_id", orgID, "kind", ev.Kind, "shift_id", ev.ShiftID)
		t.notifier.Geofence(ctx, ev)
	}
	return events, nil
}

func (t *GeofenceTracker) event(sample domain.LocationSample, orgID string, kind domain.GeofenceEventKind) domain.GeofenceEvent {
	return domain.GeofenceEvent{
		WorkerID:       sample.WorkerID,
		OrganizationID: orgID,
		Kind:           kind,
		Location:       sample.Location,
		Timestamp:      sample.Timestamp,
	}
}

// autoClockOut raises the alert for a worker who left while on shift. The
// shift stays open; closing it is left to the worker.
func (t *GeofenceTracker) autoClockOut(ctx context.Context, sample domain.LocationSample, orgID string) (domain.GeofenceEvent, bool) {
	open, err := t.shifts.FindOpen(ctx, sample.WorkerID)
	if err != nil {
		slog.ErrorContext(ctx, "auto clock-out check failed",
			"worker_id", sample.WorkerID, "error", err)
		return domain.GeofenceEvent{}, false
	}
	if open == nil {
		return domain.GeofenceEvent{}, false
	}

	alert := t.event(sample, orgID, domain.GeofenceAutoClockOut)
	alert.ShiftID = open.ID

	if t.reminders != nil {
		if err := t.reminders.ScheduleAutoClockOutReminder(ctx, alert); err != nil {
			slog.ErrorContext(ctx, "schedule auto clock-out reminder failed",
				"worker_id", sample.WorkerID, "shift_id", open.ID, "error", err)
		}
	}
	return alert, true
}

// cancelReminder stops the pending auto clock-out reminder of a worker who
// came back inside while still on shift.
func (t *GeofenceTracker) cancelReminder(ctx context.Context, workerID string) {
	if t.reminders == nil {
		return
	}
	open, err := t.shifts.FindOpen(ctx, workerID)
	if err != nil {
		slog.ErrorContext(ctx, "reminder cancel check failed", "worker_id", workerID, "error", err)
		return
	}
	if open == nil {
		return
	}
	if err := t.reminders.CancelAutoClockOutReminder(ctx, open.ID); err != nil {
		slog.ErrorContext(ctx, "cancel auto clock-out reminder failed",
			"worker_id", workerID, "shift_id", open.ID, "error", err)
	}
}

func (t *GeofenceTracker) saveLastKnown(ctx context.Context, orgID string, sample domain.LocationSample) {
	if t.locations == nil {
		return
	}
	if err := t.locations.SaveLastKnown(ctx, orgID, sample); err != nil {
		slog.WarnContext(ctx, "save last known location failed",
			"worker_id", sample.WorkerID, "error", err)
	}
}

// Status returns the worker's current fence status.
func (t *GeofenceTracker) Status(workerID string) FenceStatus {
	t.mu.Lock()
	tr, ok := t.tracks[workerID]
	t.mu.Unlock()
	if !ok {
		return StatusUnknown
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.status
}

// LastKnown returns the latest accepted sample for workerID, falling back to
// the location store for workers this process has not seen.
func (t *GeofenceTracker) LastKnown(ctx context.Context, workerID string) (*domain.LocationSample, error) {
	t.mu.Lock()
	tr, ok := t.tracks[workerID]
	t.mu.Unlock()
	if ok {
		tr.mu.Lock()
		last := tr.last
		tr.mu.Unlock()
		if last != nil {
			s := *last
			return &s, nil
		}
	}

	if t.locations == nil {
		return nil, domain.ErrNotFound
	}
	sample, _, err := t.locations.LastKnown(ctx, workerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Upstream("last known location", err)
	}
	return sample, nil
}

// WorkerLocation returns the last known location of workerID to a manager of
// the worker's organization.
func (t *GeofenceTracker) WorkerLocation(ctx context.Context, principal domain.Principal, workerID string) (*domain.LocationSample, error) {
	orgID, err := t.workers.GetOrganizationID(ctx, workerID)
	if err != nil {
		return nil, domain.Upstream("resolve worker organization", err)
	}
	if !principal.ManagesOrganization(orgID) {
		return nil, fmt.Errorf("location of worker %s: %w", workerID, domain.ErrForbidden)
	}
	return t.LastKnown(ctx, workerID)
}
