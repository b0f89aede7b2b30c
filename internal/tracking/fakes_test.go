package tracking

import (
	"context"
	"errors"
	"math"
	"sync"

	"medcover-tracking/internal/device"
	"medcover-tracking/internal/geofence"
	"medcover-tracking/internal/models"
)

var testSite = models.SiteBoundary{Latitude: 51.5074, Longitude: -0.1278, RadiusMeters: 75}

var metersPerDegreeLat = geofence.EarthRadiusMeters * math.Pi / 180

func fixAt(meters float64) Fix {
	return Fix{Latitude: testSite.Latitude + meters/metersPerDegreeLat, Longitude: testSite.Longitude, Accuracy: 5}
}

type fakeLocation struct {
	mu         sync.Mutex
	foreground bool
	background bool
	fix        Fix
	fixErr     error
	reads      int
}

func (f *fakeLocation) RequestForegroundPermission(context.Context) (bool, error) {
	return f.foreground, nil
}

func (f *fakeLocation) RequestBackgroundPermission(context.Context) (bool, error) {
	return f.background, nil
}

func (f *fakeLocation) CurrentPosition(context.Context, Accuracy) (Fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.fix, f.fixErr
}

func (f *fakeLocation) moveTo(meters float64) {
	f.mu.Lock()
	f.fix = fixAt(meters)
	f.mu.Unlock()
}

type fakePlatform struct {
	mu        sync.Mutex
	battery   int
	online    bool
	batteryFn func() (int, error)
}

func (p *fakePlatform) BatteryLevel(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.batteryFn != nil {
		return p.batteryFn()
	}
	return p.battery, nil
}

func (p *fakePlatform) Network(context.Context) (device.NetworkState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return device.NetworkState{Type: models.ConnectionNone}, nil
	}
	return device.NetworkState{Type: models.ConnectionWifi, Reachable: true}, nil
}

func (p *fakePlatform) InBackground(context.Context) bool { return false }

func (p *fakePlatform) setOnline(online bool) {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}

type fakeIngest struct {
	mu          sync.Mutex
	batches     [][]models.PositionSample
	events      []models.ShiftEvent
	failSamples int // number of upcoming SendSamples calls to fail
	failOnCall  int // fail exactly the n-th SendSamples call
	alwaysFail  bool
	sampleCalls int
}

func (f *fakeIngest) SendSamples(_ context.Context, samples []models.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleCalls++
	if f.alwaysFail || f.sampleCalls == f.failOnCall {
		return errors.New("endpoint unavailable")
	}
	if f.failSamples > 0 {
		f.failSamples--
		return errors.New("endpoint unavailable")
	}
	cp := make([]models.PositionSample, len(samples))
	copy(cp, samples)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeIngest) SendEvent(_ context.Context, event models.ShiftEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeIngest) eventsOfType(t models.ShiftEventType) []models.ShiftEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ShiftEvent
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeIngest) delivered() []models.PositionSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PositionSample
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

// memStore is an in-memory QueueStorage and SessionStorage
type memStore struct {
	mu        sync.Mutex
	rows      []models.QueuedSample
	nextID    int64
	session   *models.ShiftSession
	loadErr   error
	removeErr error
	appendErr error
	cleared   bool
}

func (m *memStore) LoadQueue(context.Context) ([]models.QueuedSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]models.QueuedSample, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memStore) AppendQueued(_ context.Context, s models.PositionSample) (models.QueuedSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return models.QueuedSample{}, m.appendErr
	}
	m.nextID++
	q := models.QueuedSample{ID: m.nextID, Sample: s}
	m.rows = append(m.rows, q)
	return q, nil
}

func (m *memStore) RemoveQueued(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *memStore) ClearQueue(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	m.cleared = true
	return nil
}

func (m *memStore) LoadSession(context.Context) (*models.ShiftSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *memStore) SaveSession(_ context.Context, s models.ShiftSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *memStore) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

type harness struct {
	location  *fakeLocation
	platform  *fakePlatform
	ingest    *fakeIngest
	store     *memStore
	scheduler *ManualScheduler
	queue     *OfflineQueue
	tracker   *Tracker
}

func newHarness() *harness {
	h := &harness{
		location:  &fakeLocation{foreground: true, background: true, fix: fixAt(500)},
		platform:  &fakePlatform{battery: 80, online: true},
		ingest:    &fakeIngest{},
		store:     &memStore{},
		scheduler: NewManualScheduler(),
	}
	h.queue = NewOfflineQueue(h.store)
	h.tracker = NewTracker(Config{}, Deps{
		Location:  h.location,
		Device:    device.NewContextProvider(h.platform),
		Sessions:  h.store,
		Queue:     h.queue,
		Ingest:    h.ingest,
		Scheduler: h.scheduler,
	})
	return h
}

func testSession() models.ShiftSession {
	return models.ShiftSession{WorkerID: "worker-1", BookingID: "booking-1", Site: testSite}
}
