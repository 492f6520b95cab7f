// Package agent is the device-side location reporter. It keeps a bounded
// buffer of recent samples and replays the unsynced ones to the API in
// arrival order.
package agent

import (
	"sync"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// DefaultCapacity is the number of samples a Buffer keeps.
const DefaultCapacity = 100

// Entry is a buffered sample. Seq increases with arrival order.
type Entry struct {
	Seq    uint64
	Sample domain.LocationSample
	Synced bool
}

// Buffer is a fixed-capacity FIFO of recent samples. When full, the oldest
// entry is evicted whether or not it was synced.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	nextSeq  uint64
	evicted  int
}

// NewBuffer creates a Buffer holding at most capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, entries: make([]Entry, 0, capacity)}
}

// Append validates and buffers sample as unsynced. Invalid samples are not
// buffered.
func (b *Buffer) Append(sample domain.LocationSample) (Entry, error) {
	if err := sample.Validate(); err != nil {
		return Entry{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	e := Entry{Seq: b.nextSeq, Sample: sample}
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
		b.evicted++
	}
	b.entries = append(b.entries, e)
	return e, nil
}

// Unsynced returns the unsynced entries, oldest first.
func (b *Buffer) Unsynced() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Entry
	for _, e := range b.entries {
		if !e.Synced {
			out = append(out, e)
		}
	}
	return out
}

// MarkSynced flags the entry with seq as synced. It reports false if the
// entry has been evicted.
func (b *Buffer) MarkSynced(seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].Seq == seq {
			b.entries[i].Synced = true
			return true
		}
	}
	return false
}

// Entries returns a snapshot of every buffered entry, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Evicted returns how many entries were dropped for capacity.
func (b *Buffer) Evicted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
