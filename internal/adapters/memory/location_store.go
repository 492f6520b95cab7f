package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

type lastKnown struct {
	orgID  string
	sample domain.LocationSample
}

// LocationStore keeps the last known location per worker in memory.
type LocationStore struct {
	mu   sync.RWMutex
	last map[string]lastKnown
}

// NewLocationStore creates an empty LocationStore.
func NewLocationStore() *LocationStore {
	return &LocationStore{last: make(map[string]lastKnown)}
}

func (l *LocationStore) SaveLastKnown(_ context.Context, orgID string, sample domain.LocationSample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[sample.WorkerID] = lastKnown{orgID: orgID, sample: sample}
	return nil
}

func (l *LocationStore) LastKnown(_ context.Context, workerID string) (*domain.LocationSample, string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.last[workerID]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	s := v.sample
	return &s, v.orgID, nil
}
