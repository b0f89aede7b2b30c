package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"medcover-tracking/internal/models"

	"github.com/google/uuid"
)

const (
	DefaultBatchSize   = 50
	DefaultSendTimeout = 15 * time.Second
)

// ErrDrainInProgress is returned by Drain when another drain holds the queue
var ErrDrainInProgress = errors.New("drain already in progress")

// Delivery records what happened to a freshly captured sample
type Delivery string

const (
	DeliverySent   Delivery = "sent"
	DeliveryQueued Delivery = "queued"
)

// SyncConfig tunes the coordinator
type SyncConfig struct {
	BatchSize   int
	SendTimeout time.Duration
}

// SyncCoordinator decides send-now or enqueue for every sample and drains the
// offline queue in bounded batches when the network allows it.
//
// Samples are delivered at least once. Events are best-effort: they are sent
// once when online and dropped with a log line otherwise.
type SyncCoordinator struct {
	ingest      Ingestor
	queue       *OfflineQueue
	network     NetworkChecker
	batchSize   int
	sendTimeout time.Duration
	now         func() time.Time

	drainMu sync.Mutex
}

// NewSyncCoordinator wires the coordinator to its collaborators
func NewSyncCoordinator(ingest Ingestor, queue *OfflineQueue, network NetworkChecker, cfg SyncConfig) *SyncCoordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &SyncCoordinator{
		ingest:      ingest,
		queue:       queue,
		network:     network,
		batchSize:   cfg.BatchSize,
		sendTimeout: cfg.SendTimeout,
		now:         time.Now,
	}
}

// HandleSample sends the sample immediately when online and queues it otherwise.
// A failed immediate send falls back to the queue; the sample is never dropped.
func (c *SyncCoordinator) HandleSample(ctx context.Context, sample models.PositionSample) Delivery {
	if _, online := c.network.Connectivity(ctx); !online {
		c.queue.Append(ctx, sample)
		log.Printf("📴 Offline - queued ping %s (%d pending)", sample.SampleID, c.queue.Len())
		return DeliveryQueued
	}

	err := c.withTimeout(ctx, func(ctx context.Context) error {
		return c.ingest.SendSamples(ctx, []models.PositionSample{sample})
	})
	if err != nil {
		c.queue.Append(ctx, sample)
		log.Printf("⚠️  Immediate send failed: %v - queued ping %s (%d pending)", err, sample.SampleID, c.queue.Len())
		return DeliveryQueued
	}

	log.Printf("📤 Sent ping %s", sample.SampleID)

	if _, err := c.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
		log.Printf("⚠️  Opportunistic drain stopped: %v", err)
	}
	return DeliverySent
}

// Drain flushes the queue in batches while it is non-empty and the network is
// reachable. The first failed batch stops the drain and stays queued. Once
// everything present at the start has been delivered a connection_restored
// event is published. A call made while another drain runs returns
// ErrDrainInProgress without touching the queue.
func (c *SyncCoordinator) Drain(ctx context.Context) (int, error) {
	if !c.drainMu.TryLock() {
		log.Printf("⏳ Drain skipped: another drain is running (%d pending)", c.queue.Len())
		return 0, ErrDrainInProgress
	}
	defer c.drainMu.Unlock()

	target := c.queue.Len()
	if target == 0 {
		return 0, nil
	}

	synced := 0
	var last models.PositionSample
	for c.queue.Len() > 0 {
		if ctx.Err() != nil {
			break
		}
		if _, online := c.network.Connectivity(ctx); !online {
			break
		}

		batch := c.queue.Peek(c.batchSize)
		samples := make([]models.PositionSample, len(batch))
		for i, e := range batch {
			samples[i] = e.Sample
		}

		err := c.withTimeout(ctx, func(ctx context.Context) error {
			return c.ingest.SendSamples(ctx, samples)
		})
		if err != nil {
			return synced, fmt.Errorf("batch of %d failed after %d synced: %w", len(batch), synced, err)
		}

		if err := c.queue.Remove(ctx, batch); err != nil {
			// Remote has the batch; it will be presented again and may arrive twice
			return synced, fmt.Errorf("failed to remove delivered batch: %w", err)
		}

		synced += len(batch)
		last = samples[len(samples)-1]
		log.Printf("📤 Synced batch of %d queued pings (%d remaining)", len(batch), c.queue.Len())
	}

	if synced > 0 && synced >= target {
		notes := fmt.Sprintf("synced %d queued pings", synced)
		event := models.ShiftEvent{
			EventID:   uuid.New().String(),
			WorkerID:  last.WorkerID,
			BookingID: last.BookingID,
			Type:      models.EventConnectionRestored,
			Timestamp: c.now().UnixMilli(),
			Source:    models.SourceSystemDetected,
			Notes:     &notes,
		}
		c.PublishEvent(ctx, event)
	}
	return synced, nil
}

// PublishEvent sends an event once. Failures are logged and the event is dropped.
func (c *SyncCoordinator) PublishEvent(ctx context.Context, event models.ShiftEvent) error {
	if _, online := c.network.Connectivity(ctx); !online {
		log.Printf("📴 Offline - dropped %s event (not retried)", event.Type)
		return fmt.Errorf("offline: %s event not sent", event.Type)
	}

	err := c.withTimeout(ctx, func(ctx context.Context) error {
		return c.ingest.SendEvent(ctx, event)
	})
	if err != nil {
		log.Printf("❌ Failed to send %s event: %v (not retried)", event.Type, err)
		return err
	}

	log.Printf("✅ Sent %s event (%s)", event.Type, event.Source)
	return nil
}

func (c *SyncCoordinator) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	return fn(ctx)
}
