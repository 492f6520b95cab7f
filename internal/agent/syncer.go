package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// DefaultSyncInterval is how often Run retries unsynced samples.
const DefaultSyncInterval = 10 * time.Second

// Sender delivers one sample to the API.
type Sender interface {
	Send(ctx context.Context, sample domain.LocationSample) error
}

// Syncer replays unsynced buffer entries through a Sender.
type Syncer struct {
	buffer   *Buffer
	sender   Sender
	interval time.Duration
	kick     chan struct{}
	flushMu  sync.Mutex
}

// NewSyncer creates a Syncer. A non-positive interval uses DefaultSyncInterval.
func NewSyncer(buffer *Buffer, sender Sender, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{buffer: buffer, sender: sender, interval: interval, kick: make(chan struct{}, 1)}
}

// Flush sends unsynced entries oldest first and stops at the first failure so
// later samples never overtake earlier ones. Samples the API rejected as
// invalid are marked synced; retrying them cannot succeed.
func (s *Syncer) Flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	sent := 0
	for _, e := range s.buffer.Unsynced() {
		if err := s.sender.Send(ctx, e.Sample); err != nil {
			var rejected *RejectedError
			if !errors.As(err, &rejected) {
				return sent, err
			}
			slog.WarnContext(ctx, "sample rejected by api",
				"seq", e.Seq, "status", rejected.Status, "code", rejected.Code, "message", rejected.Message)
		} else {
			sent++
		}
		s.buffer.MarkSynced(e.Seq)
	}
	return sent, nil
}

// Notify asks Run to flush without waiting for the next tick.
func (s *Syncer) Notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run flushes on every tick or Notify until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}

		sent, err := s.Flush(ctx)
		if err != nil {
			slog.WarnContext(ctx, "sync halted", "sent", sent, "pending", len(s.buffer.Unsynced()), "error", err)
			continue
		}
		if sent > 0 {
			slog.DebugContext(ctx, "samples synced", "sent", sent)
		}
	}
}
