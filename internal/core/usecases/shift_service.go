package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/pkg/keylock"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
	"github.com/samirrijal/shiftfence/internal/pkg/telemetry"
)

// MaxNoteLength bounds clock-in and clock-out notes, in characters.
const MaxNoteLength = 500

// ClockRequest is the typed input of ClockIn and ClockOut. WorkerID is the
// identity already resolved by the caller.
type ClockRequest struct {
	WorkerID string
	Location domain.Coordinate
	Note     string
}

// Validate rejects requests that must not reach the ledger.
func (r ClockRequest) Validate() error {
	if strings.TrimSpace(r.WorkerID) == "" {
		return fmt.Errorf("%w: worker id is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(r.Note) > MaxNoteLength {
		return fmt.Errorf("%w: note exceeds %d characters", domain.ErrInvalidRequest, MaxNoteLength)
	}
	return r.Location.Validate()
}

// ShiftService is the shift ledger. It enforces one open shift per worker and
// requires the worker to be inside the facility perimeter at both ends.
type ShiftService struct {
	shifts     ports.ShiftRepository
	workers    ports.WorkerRepository
	perimeters PerimeterSource
	notifier   *Notifier
	locks      *keylock.Locker
	now        func() time.Time
	newID      func() string
}

// ShiftOption customises a ShiftService.
type ShiftOption func(*ShiftService)

// WithClock overrides the server clock used for clock stamps.
func WithClock(now func() time.Time) ShiftOption {
	return func(s *ShiftService) { s.now = now }
}

// WithIDGenerator overrides shift ID generation.
func WithIDGenerator(newID func() string) ShiftOption {
	return func(s *ShiftService) { s.newID = newID }
}

// NewShiftService creates a new ShiftService.
func NewShiftService(
	shifts ports.ShiftRepository,
	workers ports.WorkerRepository,
	perimeters PerimeterSource,
	notifier *Notifier,
	opts ...ShiftOption,
) *ShiftService {
	s := &ShiftService{
		shifts:     shifts,
		workers:    workers,
		perimeters: perimeters,
		notifier:   notifier,
		locks:      keylock.New(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ClockIn opens a shift for the worker at the current server time.
func (s *ShiftService) ClockIn(ctx context.Context, req ClockRequest) (shift *domain.Shift, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanClockIn,
		trace.WithAttributes(attribute.String("worker.id", req.WorkerID)))
	defer func() {
		metrics.ClockAttempts.WithLabelValues("clock_in", resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The perimeter is read outside the worker lock; a concurrent update may
	// land after this read and that is acceptable.
	orgID, perimeter, err := resolveWorkerPerimeter(ctx, s.workers, s.perimeters, req.WorkerID)
	if err != nil {
		return nil, err
	}

	shift, err = withWorkerLock(s.locks, req.WorkerID, func() (*domain.Shift, error) {
		return s.clockInLocked(ctx, req, orgID, perimeter)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "worker clocked in",
		"worker_id", shift.WorkerID, "shift_id", shift.ID, "organization_id", orgID)
	s.notifier.ShiftClockedIn(ctx, shift)
	return shift, nil
}

// withWorkerLock runs fn holding the worker's lock. The lock is released even
// if fn panics.
func withWorkerLock(locks *keylock.Locker, workerID string, fn func() (*domain.Shift, error)) (*domain.Shift, error) {
	unlock := locks.Lock(workerID)
	defer unlock()
	return fn()
}

func (s *ShiftService) clockInLocked(ctx context.Context, req ClockRequest, orgID string, perimeter *domain.Perimeter) (*domain.Shift, error) {
	open, err := s.shifts.FindOpen(ctx, req.WorkerID)
	if err != nil {
		return nil, domain.Upstream("find open shift", err)
	}
	if open != nil {
		return nil, fmt.Errorf("worker %s has open shift %s: %w", req.WorkerID, open.ID, domain.ErrAlreadyClockedIn)
	}

	if err := domain.CheckPerimeter(req.Location, *perimeter); err != nil {
		return nil, err
	}

	shift := &domain.Shift{
		ID:             s.newID(),
		WorkerID:       req.WorkerID,
		OrganizationID: orgID,
		ClockIn: domain.ClockStamp{
			Time:     s.now(),
			Location: req.Location,
			Note:     req.Note,
		},
	}
	if err := s.shifts.Create(ctx, shift); err != nil {
		return nil, domain.Upstream("create shift", err)
	}
	return shift, nil
}

// ClockOut closes the worker's open shift at the current server time.
func (s *ShiftService) ClockOut(ctx context.Context, req ClockRequest) (shift *domain.Shift, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanClockOut,
		trace.WithAttributes(attribute.String("worker.id", req.WorkerID)))
	defer func() {
		metrics.ClockAttempts.WithLabelValues("clock_out", resultLabel(err)).Inc()
		endSpan(span, err)
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	_, perimeter, err := resolveWorkerPerimeter(ctx, s.workers, s.perimeters, req.WorkerID)
	if err != nil {
		return nil, err
	}

	shift, err = withWorkerLock(s.locks, req.WorkerID, func() (*domain.Shift, error) {
		return s.clockOutLocked(ctx, req, perimeter)
	})
	if err != nil {
		return nil, err
	}

	metrics.ShiftHours.Observe(*shift.TotalHours)
	slog.InfoContext(ctx, "worker clocked out",
		"worker_id", shift.WorkerID, "shift_id", shift.ID, "total_hours", *shift.TotalHours)
	s.notifier.ShiftClockedOut(ctx, shift)
	return shift, nil
}

func (s *ShiftService) clockOutLocked(ctx context.Context, req ClockRequest, perimeter *domain.Perimeter) (*domain.Shift, error) {
	open, err := s.shifts.FindOpen(ctx, req.WorkerID)
	if err != nil {
		return nil, domain.Upstream("find open shift", err)
	}
	if open == nil {
		return nil, fmt.Errorf("worker %s: %w", req.WorkerID, domain.ErrNoActiveShift)
	}

	if err := domain.CheckPerimeter(req.Location, *perimeter); err != nil {
		return nil, err
	}

	closed := *open
	out := domain.ClockStamp{Time: s.now(), Location: req.Location, Note: req.Note}
	if err := closed.Close(out); err != nil {
		return nil, err
	}

	if err := s.shifts.Close(ctx, closed.ID, out, *closed.TotalHours); err != nil {
		return nil, domain.Upstream("close shift", err)
	}
	return &closed, nil
}

// ActiveShift returns the worker's open shift or domain.ErrNoActiveShift.
func (s *ShiftService) ActiveShift(ctx context.Context, workerID string) (*domain.Shift, error) {
	open, err := s.shifts.FindOpen(ctx, workerID)
	if err != nil {
		return nil, domain.Upstream("find open shift", err)
	}
	if open == nil {
		return nil, domain.ErrNoActiveShift
	}
	return open, nil
}

// History returns a page of the worker's shifts, newest first.
func (s *ShiftService) History(ctx context.Context, workerID string, offset, limit int) ([]domain.Shift, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	shifts, total, err := s.shifts.ListByWorker(ctx, workerID, offset, limit)
	if err != nil {
		return nil, 0, domain.Upstream("list shifts", err)
	}
	return shifts, total, nil
}

// OnShift lists the open shifts of orgID for one of its managers.
func (s *ShiftService) OnShift(ctx context.Context, principal domain.Principal, orgID string) ([]domain.Shift, error) {
	if !principal.ManagesOrganization(orgID) {
		return nil, fmt.Errorf("list on-shift staff of %s: %w", orgID, domain.ErrForbidden)
	}
	shifts, err := s.shifts.ListOpenByOrganization(ctx, orgID)
	if err != nil {
		return nil, domain.Upstream("list open shifts", err)
	}
	return shifts, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.Classify(err))
}

// endSpan records err on span when it is not an expected business outcome.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		switch domain.Classify(err) {
		case domain.ClassUpstream, domain.ClassInternal:
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
