package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"medcover-tracking/internal/device"
	"medcover-tracking/internal/geofence"
	"medcover-tracking/internal/models"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("foreground location permission denied")
	ErrNoActiveSession  = errors.New("no active tracking session")
	ErrSessionActive    = errors.New("a tracking session is already active")
)

// Config holds the tracker's tunables
type Config struct {
	SampleInterval    time.Duration
	GeofenceThreshold int
	Sync              SyncConfig
}

// Deps are the collaborators a Tracker is built from
type Deps struct {
	Location  LocationProvider
	Device    *device.ContextProvider
	Battery   *device.BatteryMonitor
	Sessions  SessionStorage
	Queue     *OfflineQueue
	Ingest    Ingestor
	Scheduler Scheduler
}

// activeSession is the state that lives only while tracking is running
type activeSession struct {
	session    models.ShiftSession
	classifier *geofence.Classifier
}

// Tracker owns the lifecycle of one tracking session on the device
type Tracker struct {
	cfg       Config
	location  LocationProvider
	device    *device.ContextProvider
	battery   *device.BatteryMonitor
	sessions  SessionStorage
	queue     *OfflineQueue
	sync      *SyncCoordinator
	sampler   *Sampler
	scheduler Scheduler
	now       func() time.Time

	mu     sync.Mutex
	active *activeSession

	tickMu sync.Mutex
}

// NewTracker builds a tracker from its dependencies
func NewTracker(cfg Config, deps Deps) *Tracker {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.GeofenceThreshold <= 0 {
		cfg.GeofenceThreshold = geofence.DefaultThreshold
	}
	if deps.Battery == nil {
		deps.Battery = device.NewBatteryMonitor(device.DefaultLowBatteryPercent, nil)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTickerScheduler()
	}

	return &Tracker{
		cfg:       cfg,
		location:  deps.Location,
		device:    deps.Device,
		battery:   deps.Battery,
		sessions:  deps.Sessions,
		queue:     deps.Queue,
		sync:      NewSyncCoordinator(deps.Ingest, deps.Queue, deps.Device, cfg.Sync),
		sampler:   NewSampler(deps.Location, deps.Device, deps.Battery),
		scheduler: deps.Scheduler,
		now:       time.Now,
	}
}

// StartTracking begins sampling for a session. Foreground location permission
// is required; without background permission tracking continues while the app
// is in the foreground.
func (t *Tracker) StartTracking(ctx context.Context, session models.ShiftSession) error {
	if session.StartedAt == 0 {
		session.StartedAt = t.now().UnixMilli()
	}
	session.Status = models.SessionActive
	session.StoppedAt = nil

	if err := t.start(ctx, session); err != nil {
		return err
	}

	if err := t.sessions.SaveSession(ctx, session); err != nil {
		log.Printf("⚠️  Failed to persist session %s: %v (tracking will not resume after a restart)", session.BookingID, err)
	}

	log.Printf("✅ Tracking started for worker %s on booking %s (radius %.0fm)", session.WorkerID, session.BookingID, session.Site.Radius())
	t.emit(ctx, session, models.EventShiftStarted, models.SourceSystemDetected, nil, "")
	return nil
}

// Resume restarts tracking for a session persisted before a process restart.
// It returns false when there is nothing to resume.
func (t *Tracker) Resume(ctx context.Context) (bool, error) {
	session, err := t.sessions.LoadSession(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load persisted session: %w", err)
	}
	if session == nil || !session.IsActive() {
		return false, nil
	}

	if err := t.start(ctx, *session); err != nil {
		if errors.Is(err, ErrSessionActive) {
			return false, nil
		}
		return false, err
	}

	log.Printf("🔄 Resumed tracking for worker %s on booking %s", session.WorkerID, session.BookingID)
	return true, nil
}

func (t *Tracker) start(ctx context.Context, session models.ShiftSession) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return ErrSessionActive
	}

	granted, err := t.location.RequestForegroundPermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	background, err := t.location.RequestBackgroundPermission(ctx)
	if err != nil || !background {
		log.Printf("⚠️  Background location not granted - tracking only while the app is open")
	}

	t.queue.Restore(ctx)
	t.battery.Reset()

	active := &activeSession{
		session:    session,
		classifier: geofence.NewClassifier(session, t.cfg.GeofenceThreshold),
	}

	if err := t.scheduler.Start(t.cfg.SampleInterval, t.tick); err != nil {
		return fmt.Errorf("failed to start position sampling: %w", err)
	}
	t.active = active
	return nil
}

// StopTracking ends the active session. With no session it logs and returns nil.
// No sample is taken after it returns; one final drain is attempted first.
func (t *Tracker) StopTracking(ctx context.Context) error {
	t.mu.Lock()
	active := t.active
	t.active = nil
	t.mu.Unlock()

	if active == nil {
		log.Println("ℹ️  StopTracking called with no active session")
		return nil
	}

	t.scheduler.Stop()

	synced, err := t.sync.Drain(ctx)
	switch {
	case errors.Is(err, ErrDrainInProgress):
		log.Printf("⏳ Final drain deferred to the running drain - %d pings still queued", t.queue.Len())
	case err != nil:
		log.Printf("⚠️  Final drain incomplete (%d synced): %v - %d pings stay queued", synced, err, t.queue.Len())
	}

	session := active.session
	stoppedAt := t.now().UnixMilli()
	session.StoppedAt = &stoppedAt
	session.Status = models.SessionInactive

	t.emit(ctx, session, models.EventShiftEnded, models.SourceSystemDetected, nil, "")

	if err := t.sessions.ClearSession(ctx); err != nil {
		log.Printf("⚠️  Failed to clear persisted session: %v", err)
	}

	log.Printf("🛑 Tracking stopped for booking %s after %s", session.BookingID, session.Duration(t.now()).Round(time.Second))
	return nil
}

// MarkArrived records a manual arrival. It is independent of the automatic
// geofence state and may disagree with it.
func (t *Tracker) MarkArrived(ctx context.Context, userID, notes string) error {
	return t.markManual(ctx, userID, models.EventArrivedOnSite, notes)
}

// MarkDeparture records a manual departure
func (t *Tracker) MarkDeparture(ctx context.Context, userID, notes string) error {
	return t.markManual(ctx, userID, models.EventLeftSite, notes)
}

func (t *Tracker) markManual(ctx context.Context, userID string, eventType models.ShiftEventType, notes string) error {
	t.mu.Lock()
	active := t.active
	t.mu.Unlock()

	if active == nil {
		return ErrNoActiveSession
	}

	fix, err := t.location.CurrentPosition(ctx, AccuracyHighest)
	if err != nil {
		return fmt.Errorf("failed to read position for %s: %w", eventType, err)
	}

	session := active.session
	if userID != "" {
		session.WorkerID = userID
	}
	t.emit(ctx, session, eventType, models.SourceManualButton, &fix, notes)
	return nil
}

// ActiveSession returns the running session, if any
func (t *Tracker) ActiveSession() (models.ShiftSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return models.ShiftSession{}, false
	}
	return t.active.session, true
}

// GeofenceState returns the classifier memory of the running session
func (t *Tracker) GeofenceState() (geofence.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return geofence.State{}, false
	}
	return t.active.classifier.State(), true
}

// QueueLength returns the number of pings waiting for delivery
func (t *Tracker) QueueLength() int {
	return t.queue.Len()
}

// tick is one unit of work: sample, classify, publish any transition, sync.
func (t *Tracker) tick(ctx context.Context) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	t.mu.Lock()
	active := t.active
	t.mu.Unlock()
	if active == nil {
		return
	}

	sample, err := t.sampler.Sample(ctx, active.session)
	if err != nil {
		log.Printf("❌ Skipping ping: %v", err)
		return
	}

	t.mu.Lock()
	result := active.classifier.Observe(sample)
	t.mu.Unlock()

	log.Printf("📍 Ping %.6f,%.6f ±%.0fm - %.0fm from site (in=%d out=%d)",
		sample.Latitude, sample.Longitude, sample.Accuracy, result.Distance,
		result.State.ConsecutiveInside, result.State.ConsecutiveOutside)

	if result.Event != nil {
		snapshot := t.device.Snapshot(ctx)
		result.Event.Device = &snapshot
		t.sync.PublishEvent(ctx, *result.Event)
	}

	t.sync.HandleSample(ctx, sample)
}

func (t *Tracker) emit(ctx context.Context, session models.ShiftSession, eventType models.ShiftEventType, source models.EventSource, fix *Fix, notes string) {
	snapshot := t.device.Snapshot(ctx)
	event := models.ShiftEvent{
		EventID:   uuid.New().String(),
		WorkerID:  session.WorkerID,
		BookingID: session.BookingID,
		Type:      eventType,
		Timestamp: t.now().UnixMilli(),
		Source:    source,
		Device:    &snapshot,
	}
	if fix != nil {
		lat, lon, acc := fix.Latitude, fix.Longitude, fix.Accuracy
		event.Latitude = &lat
		event.Longitude = &lon
		event.Accuracy = &acc
	}
	if notes != "" {
		event.Notes = &notes
	}
	t.sync.PublishEvent(ctx, event)
}
