// Package memory provides in-process implementations of the core ports. They
// back the test suites and let cmd/api run without external infrastructure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// Store is an in-memory record store for shifts, organizations and workers.
// It satisfies ports.ShiftRepository, ports.OrganizationRepository and
// ports.WorkerRepository.
type Store struct {
	mu         sync.RWMutex
	shifts     map[string]*domain.Shift
	order      []string
	openByUser map[string]string
	perimeters map[string]*domain.Perimeter
	workers    map[string]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		shifts:     make(map[string]*domain.Shift),
		openByUser: make(map[string]string),
		perimeters: make(map[string]*domain.Perimeter),
		workers:    make(map[string]string),
	}
}

// AddOrganization registers an organization. perimeter may be nil for an
// organization that has not configured one yet.
func (s *Store) AddOrganization(orgID string, perimeter *domain.Perimeter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perimeter == nil {
		s.perimeters[orgID] = nil
		return
	}
	p := *perimeter
	p.OrganizationID = orgID
	s.perimeters[orgID] = &p
}

// AddWorker assigns workerID to orgID.
func (s *Store) AddWorker(workerID, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[workerID] = orgID
}

// --- ShiftRepository ---

func (s *Store) FindOpen(_ context.Context, workerID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.openByUser[workerID]
	if !ok {
		return nil, nil
	}
	return cloneShift(s.shifts[id]), nil
}

func (s *Store) Create(_ context.Context, shift *domain.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.openByUser[shift.WorkerID]; ok {
		return fmt.Errorf("worker %s has open shift %s: %w", shift.WorkerID, id, domain.ErrAlreadyClockedIn)
	}
	if _, ok := s.shifts[shift.ID]; ok {
		return fmt.Errorf("shift %s already exists", shift.ID)
	}
	c := cloneShift(shift)
	s.shifts[c.ID] = c
	s.order = append(s.order, c.ID)
	if c.IsOpen() {
		s.openByUser[c.WorkerID] = c.ID
	}
	return nil
}

func (s *Store) Close(_ context.Context, shiftID string, out domain.ClockStamp, totalHours float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[shiftID]
	if !ok || !sh.IsOpen() {
		return fmt.Errorf("close shift %s: %w", shiftID, domain.ErrNoActiveShift)
	}
	o := out
	h := totalHours
	sh.ClockOut = &o
	sh.TotalHours = &h
	delete(s.openByUser, sh.WorkerID)
	return nil
}

func (s *Store) ListByWorker(_ context.Context, workerID string, offset, limit int) ([]domain.Shift, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.Shift
	for i := len(s.order) - 1; i >= 0; i-- {
		sh := s.shifts[s.order[i]]
		if sh.WorkerID == workerID {
			all = append(all, *cloneShift(sh))
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ClockIn.Time.After(all[j].ClockIn.Time)
	})
	total := len(all)
	if offset >= total {
		return []domain.Shift{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) ListOpenByOrganization(_ context.Context, orgID string) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Shift{}
	for _, id := range s.openByUser {
		if sh := s.shifts[id]; sh.OrganizationID == orgID {
			out = append(out, *cloneShift(sh))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClockIn.Time.Before(out[j].ClockIn.Time) })
	return out, nil
}

// --- OrganizationRepository ---

func (s *Store) GetPerimeter(_ context.Context, orgID string) (*domain.Perimeter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perimeters[orgID]
	if !ok || p == nil {
		return nil, fmt.Errorf("perimeter of %s: %w", orgID, domain.ErrOrganizationNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) UpdatePerimeter(_ context.Context, perimeter *domain.Perimeter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perimeters[perimeter.OrganizationID]; !ok {
		return fmt.Errorf("update perimeter of %s: %w", perimeter.OrganizationID, domain.ErrOrganizationNotFound)
	}
	c := *perimeter
	s.perimeters[perimeter.OrganizationID] = &c
	return nil
}

// --- WorkerRepository ---

func (s *Store) GetOrganizationID(_ context.Context, workerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgID, ok := s.workers[workerID]
	if !ok || orgID == "" {
		return "", fmt.Errorf("worker %s: %w", workerID, domain.ErrOrganizationNotFound)
	}
	return orgID, nil
}

func cloneShift(sh *domain.Shift) *domain.Shift {
	if sh == nil {
		return nil
	}
	c := *sh
	if sh.ClockOut != nil {
		out := *sh.ClockOut
		c.ClockOut = &out
	}
	if sh.TotalHours != nil {
		h := *sh.TotalHours
		c.TotalHours = &h
	}
	return &c
}
