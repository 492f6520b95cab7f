package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// ShiftRepo implements ports.ShiftRepository with pgx. The partial unique
// index idx_shifts_one_open backs the one-open-shift rule across processes.
type ShiftRepo struct {
	db *DB
}

// NewShiftRepo creates a new ShiftRepo.
func NewShiftRepo(db *DB) *ShiftRepo {
	return &ShiftRepo{db: db}
}

const shiftColumns = `
	id, worker_id, organization_id,
	clock_in_time, clock_in_lat, clock_in_lon, clock_in_note,
	clock_out_time, clock_out_lat, clock_out_lon, clock_out_note,
	total_hours`

func scanShift(row pgx.Row) (*domain.Shift, error) {
	var (
		s          domain.Shift
		outTime    *time.Time
		outLat     *float64
		outLon     *float64
		outNote    *string
		totalHours *float64
	)
	if err := row.Scan(
		&s.ID, &s.WorkerID, &s.OrganizationID,
		&s.ClockIn.Time, &s.ClockIn.Location.Lat, &s.ClockIn.Location.Lon, &s.ClockIn.Note,
		&outTime, &outLat, &outLon, &outNote,
		&totalHours,
	); err != nil {
		return nil, err
	}
	if outTime != nil {
		out := domain.ClockStamp{Time: *outTime}
		if outLat != nil && outLon != nil {
			out.Location = domain.Coordinate{Lat: *outLat, Lon: *outLon}
		}
		if outNote != nil {
			out.Note = *outNote
		}
		s.ClockOut = &out
		s.TotalHours = totalHours
	}
	return &s, nil
}

// FindOpen returns the worker's open shift, or nil.
func (r *ShiftRepo) FindOpen(ctx context.Context, workerID string) (*domain.Shift, error) {
	s, err := scanShift(r.db.Pool.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE worker_id = $1 AND clock_out_time IS NULL
	`, workerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open shift: %w", err)
	}
	return s, nil
}

// Create inserts an open shift.
func (r *ShiftRepo) Create(ctx context.Context, s *domain.Shift) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO shifts (id, worker_id, organization_id,
		                    clock_in_time, clock_in_lat, clock_in_lon, clock_in_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.WorkerID, s.OrganizationID,
		s.ClockIn.Time, s.ClockIn.Location.Lat, s.ClockIn.Location.Lon, s.ClockIn.Note)
	if isUniqueViolation(err, "idx_shifts_one_open") {
		return fmt.Errorf("worker %s: %w", s.WorkerID, domain.ErrAlreadyClockedIn)
	}
	if err != nil {
		return fmt.Errorf("insert shift: %w", err)
	}
	return nil
}

// Close sets the clock-out of a still-open shift.
func (r *ShiftRepo) Close(ctx context.Context, shiftID string, out domain.ClockStamp, totalHours float64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE shifts
		SET clock_out_time = $2, clock_out_lat = $3, clock_out_lon = $4,
		    clock_out_note = $5, total_hours = $6
		WHERE id = $1 AND clock_out_time IS NULL
	`, shiftID, out.Time, out.Location.Lat, out.Location.Lon, out.Note, totalHours)
	if err != nil {
		return fmt.Errorf("close shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close shift %s: %w", shiftID, domain.ErrNoActiveShift)
	}
	return nil
}

// ListByWorker returns a page of shifts, newest first.
func (r *ShiftRepo) ListByWorker(ctx context.Context, workerID string, offset, limit int) ([]domain.Shift, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM shifts WHERE worker_id = $1`, workerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count shifts: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE worker_id = $1
		ORDER BY clock_in_time DESC
		OFFSET $2 LIMIT $3
	`, workerID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list shifts: %w", err)
	}
	shifts, err := collectShifts(rows)
	if err != nil {
		return nil, 0, err
	}
	return shifts, total, nil
}

// ListOpenByOrganization returns every open shift in orgID.
func (r *ShiftRepo) ListOpenByOrganization(ctx context.Context, orgID string) ([]domain.Shift, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE organization_id = $1 AND clock_out_time IS NULL
		ORDER BY clock_in_time
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list open shifts: %w", err)
	}
	return collectShifts(rows)
}

func collectShifts(rows pgx.Rows) ([]domain.Shift, error) {
	defer rows.Close()
	shifts := []domain.Shift{}
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, *s)
	}
	return shifts, rows.Err()
}
