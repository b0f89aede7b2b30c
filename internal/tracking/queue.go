package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"medcover-tracking/internal/models"
)

// OfflineQueue is a FIFO of samples awaiting delivery, mirrored in memory and
// written through to durable storage. Append and Remove are serialized.
type OfflineQueue struct {
	storage QueueStorage

	mu      sync.Mutex
	entries []models.QueuedSample
	localID int64 // negative IDs for entries the storage refused
}

// NewOfflineQueue creates an empty queue; call Restore to load persisted entries
func NewOfflineQueue(storage QueueStorage) *OfflineQueue {
	return &OfflineQueue{storage: storage}
}

// Restore reloads the queue from storage. Persisted rows this process has not
// seen yet predate it and go to the head; entries already in memory keep their
// relative order. Only a corrupt queue is discarded; any other load failure
// leaves both storage and memory untouched.
func (q *OfflineQueue) Restore(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	loaded, err := q.storage.LoadQueue(ctx)
	switch {
	case errors.Is(err, ErrCorruptQueue):
		log.Printf("❌ Offline queue is unreadable: %v (discarding persisted pings)", err)
		if err := q.storage.ClearQueue(ctx); err != nil {
			log.Printf("⚠️  Failed to clear unreadable queue: %v", err)
		}
		loaded = nil
	case err != nil:
		log.Printf("⚠️  Failed to load offline queue: %v (keeping %d pings in memory)", err, len(q.entries))
		return len(q.entries)
	}

	known := make(map[int64]struct{}, len(q.entries))
	for _, e := range q.entries {
		known[e.ID] = struct{}{}
	}
	merged := make([]models.QueuedSample, 0, len(loaded)+len(q.entries))
	for _, e := range loaded {
		if _, ok := known[e.ID]; !ok {
			merged = append(merged, e)
		}
	}
	q.entries = append(merged, q.entries...)

	if len(q.entries) > 0 {
		log.Printf("📦 Restored %d queued pings", len(q.entries))
	}
	return len(q.entries)
}

// Append adds a sample to the tail. It never drops the sample: if storage
// fails the entry is kept in memory for the lifetime of the process.
func (q *OfflineQueue) Append(ctx context.Context, sample models.PositionSample) {
	sample.CapturedOffline = true

	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.storage.AppendQueued(ctx, sample)
	if err != nil {
		log.Printf("⚠️  Failed to persist queued ping %s: %v (kept in memory)", sample.SampleID, err)
		q.localID--
		entry = models.QueuedSample{ID: q.localID, Sample: sample, EnqueuedAt: time.Now().UnixMilli()}
	}
	q.entries = append(q.entries, entry)
}

// Peek returns up to n of the oldest entries without removing them
func (q *OfflineQueue) Peek(n int) []models.QueuedSample {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]models.QueuedSample, n)
	copy(out, q.entries[:n])
	return out
}

// Remove deletes exactly the given entries. On storage failure nothing is
// removed, so the same entries are presented again by the next Peek.
func (q *OfflineQueue) Remove(ctx context.Context, batch []models.QueuedSample) error {
	if len(batch) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	remove := make(map[int64]struct{}, len(batch))
	var persisted []int64
	for _, e := range batch {
		remove[e.ID] = struct{}{}
		if e.ID > 0 {
			persisted = append(persisted, e.ID)
		}
	}

	if err := q.storage.RemoveQueued(ctx, persisted); err != nil {
		return err
	}

	kept := q.entries[:0]
	for _, e := range q.entries {
		if _, ok := remove[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	return nil
}

// Len returns the number of queued samples
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
