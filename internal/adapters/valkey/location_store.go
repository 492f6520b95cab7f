package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// DefaultLocationTTL bounds how long a last known location is kept.
const DefaultLocationTTL = 12 * time.Hour

// LocationStore implements ports.LocationStore on Valkey.
type LocationStore struct {
	client valkey.Client
	ttl    time.Duration
}

type storedLocation struct {
	OrganizationID string                `json:"organization_id"`
	Sample         domain.LocationSample `json:"sample"`
}

func locationKey(workerID string) string {
	return keyPrefix + "location:worker:" + workerID
}

// SaveLastKnown overwrites the worker's last known location.
func (l *LocationStore) SaveLastKnown(ctx context.Context, orgID string, sample domain.LocationSample) error {
	data, err := json.Marshal(storedLocation{OrganizationID: orgID, Sample: sample})
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	ttl := l.ttl
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	return l.client.Do(ctx,
		l.client.B().Set().Key(locationKey(sample.WorkerID)).Value(valkey.BinaryString(data)).Ex(ttl).Build(),
	).Error()
}

// LastKnown returns the stored sample and its organization.
func (l *LocationStore) LastKnown(ctx context.Context, workerID string) (*domain.LocationSample, string, error) {
	b, err := l.client.Do(ctx, l.client.B().Get().Key(locationKey(workerID)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	var v storedLocation
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, "", fmt.Errorf("decode location: %w", err)
	}
	return &v.Sample, v.OrganizationID, nil
}
