package tracking

import (
	"context"
	"testing"

	"medcover-tracking/internal/device"
	"medcover-tracking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSync(online bool) (*SyncCoordinator, *fakeIngest, *fakePlatform, *OfflineQueue) {
	ingest := &fakeIngest{}
	platform := &fakePlatform{online: online}
	queue := NewOfflineQueue(&memStore{})
	return NewSyncCoordinator(ingest, queue, device.NewContextProvider(platform), SyncConfig{}), ingest, platform, queue
}

func TestOfflineSampleQueuedWithoutNetworkAttempt(t *testing.T) {
	sync, ingest, _, queue := newTestSync(false)

	assert.Equal(t, DeliveryQueued, sync.HandleSample(context.Background(), ping(1)))
	assert.Equal(t, 0, ingest.sampleCalls)
	assert.Equal(t, 1, queue.Len())
}

func TestFailedImmediateSendFallsBackToQueue(t *testing.T) {
	sync, ingest, _, queue := newTestSync(true)
	ingest.failSamples = 1

	assert.Equal(t, DeliveryQueued, sync.HandleSample(context.Background(), ping(1)))
	assert.Equal(t, 1, queue.Len())
	assert.Empty(t, ingest.delivered())
}

func TestReconnectDrainsBacklogInOneBatch(t *testing.T) {
	ctx := context.Background()
	sync, ingest, platform, queue := newTestSync(false)

	for i := 1; i <= 5; i++ {
		sync.HandleSample(ctx, ping(i))
	}
	require.Equal(t, 5, queue.Len())

	platform.setOnline(true)
	assert.Equal(t, DeliverySent, sync.HandleSample(ctx, ping(6)))

	require.Len(t, ingest.batches, 2)
	assert.Len(t, ingest.batches[0], 1)
	assert.Equal(t, "ping-6", ingest.batches[0][0].SampleID)
	require.Len(t, ingest.batches[1], 5)
	for i, s := range ingest.batches[1] {
		assert.Equal(t, ping(i+1).SampleID, s.SampleID)
		assert.True(t, s.CapturedOffline)
	}
	assert.Equal(t, 0, queue.Len())

	restored := ingest.eventsOfType(models.EventConnectionRestored)
	require.Len(t, restored, 1)
	require.NotNil(t, restored[0].Notes)
	assert.Equal(t, "synced 5 queued pings", *restored[0].Notes)
	assert.Equal(t, models.SourceSystemDetected, restored[0].Source)
	assert.Equal(t, "booking-1", restored[0].BookingID)
}

func TestDrainUsesBoundedBatches(t *testing.T) {
	ctx := context.Background()
	sync, ingest, platform, queue := newTestSync(false)
	for i := 0; i < 120; i++ {
		queue.Append(ctx, ping(i))
	}
	platform.setOnline(true)

	synced, err := sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, synced)

	require.Len(t, ingest.batches, 3)
	assert.Len(t, ingest.batches[0], 50)
	assert.Len(t, ingest.batches[1], 50)
	assert.Len(t, ingest.batches[2], 20)
	assert.Len(t, ingest.eventsOfType(models.EventConnectionRestored), 1)
}

func TestDrainStopsOnFirstFailureAndRetriesSameEntries(t *testing.T) {
	ctx := context.Background()
	sync, ingest, platform, queue := newTestSync(false)
	for i := 0; i < 60; i++ {
		queue.Append(ctx, ping(i))
	}
	platform.setOnline(true)

	// First batch goes through, second is rejected
	ingest.failOnCall = 2
	synced, err := sync.Drain(ctx)
	assert.Error(t, err)
	assert.Equal(t, 50, synced)
	require.Equal(t, 10, queue.Len())
	remaining := queue.Peek(50)
	assert.Equal(t, ping(50).SampleID, remaining[0].Sample.SampleID)
	assert.Empty(t, ingest.eventsOfType(models.EventConnectionRestored))

	ingest.failSamples = 1
	synced, err = sync.Drain(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, synced)
	assert.Equal(t, remaining, queue.Peek(50))

	synced, err = sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, synced)
	assert.Equal(t, 0, queue.Len())
	assert.Len(t, ingest.eventsOfType(models.EventConnectionRestored), 1)
}

func TestEveryQueuedSampleEventuallyDelivered(t *testing.T) {
	ctx := context.Background()
	sync, ingest, platform, queue := newTestSync(true)
	sync.batchSize = 4

	// Alternate failures across immediate sends and drains
	for i := 0; i < 25; i++ {
		ingest.mu.Lock()
		ingest.failSamples = i % 3
		ingest.mu.Unlock()
		sync.HandleSample(ctx, ping(i))
		if i%7 == 0 {
			platform.setOnline(!platform.online)
		}
	}

	platform.setOnline(true)
	ingest.failSamples = 0
	_, err := sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Len())

	seen := map[string]bool{}
	for _, s := range ingest.delivered() {
		seen[s.SampleID] = true
	}
	for i := 0; i < 25; i++ {
		assert.True(t, seen[ping(i).SampleID], "ping %d never delivered", i)
	}
}

func TestEventsDroppedWhenOffline(t *testing.T) {
	sync, ingest, _, _ := newTestSync(false)

	err := sync.PublishEvent(context.Background(), models.ShiftEvent{EventID: "e1", Type: models.EventLeftSite})
	assert.Error(t, err)
	assert.Empty(t, ingest.events)
}

func TestConcurrentDrainIsSkipped(t *testing.T) {
	sync, _, _, queue := newTestSync(true)
	queue.Append(context.Background(), ping(1))

	sync.drainMu.Lock()
	synced, err := sync.Drain(context.Background())
	sync.drainMu.Unlock()

	assert.ErrorIs(t, err, ErrDrainInProgress)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 1, queue.Len())

	// Once the lock is released the entry drains normally
	synced, err = sync.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, queue.Len())
}

func TestSendSucceedsWhileDrainRunning(t *testing.T) {
	sync, ingest, _, queue := newTestSync(true)
	queue.Append(context.Background(), ping(1))

	sync.drainMu.Lock()
	delivery := sync.HandleSample(context.Background(), ping(2))
	sync.drainMu.Unlock()

	assert.Equal(t, DeliverySent, delivery)
	assert.Equal(t, 1, queue.Len())
	require.Len(t, ingest.delivered(), 1)
	assert.Equal(t, "ping-2", ingest.delivered()[0].SampleID)
}
