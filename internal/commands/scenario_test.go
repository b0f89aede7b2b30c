package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"medcover-tracking/internal/config"
	"medcover-tracking/internal/database"
	"medcover-tracking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arrivalScenario = `
worker_id: medic-7
booking_id: festival-2024
site:
  latitude: 51.5074
  longitude: -0.1278
  radius_meters: 75
pings:
  - distance: 400
  - distance: 50
    battery: 25
  - distance: 50
    battery: 18
  - distance: 50
    battery: 22
  - distance: 40
    battery: 15
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testDeviceConfig() config.Device {
	return config.Device{
		SampleInterval:    30 * time.Second,
		SiteRadiusMeters:  75,
		GeofenceThreshold: 3,
		QueueBatchSize:    50,
		LowBatteryPercent: 20,
		SendTimeout:       5 * time.Second,
	}
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, arrivalScenario))
	require.NoError(t, err)

	assert.Equal(t, "medic-7", s.WorkerID)
	assert.Equal(t, 75.0, s.Site.RadiusMeters)
	require.Len(t, s.Pings, 5)
	require.NotNil(t, s.Pings[2].Battery)
	assert.Equal(t, 18, *s.Pings[2].Battery)

	lat, lon := s.Pings[1].Position(s.Site)
	assert.InDelta(t, 51.5074+50/111194.93, lat, 1e-6)
	assert.Equal(t, -0.1278, lon)
}

func TestLoadScenarioRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no pings":     "worker_id: a\nbooking_id: b\nsite: {latitude: 1, longitude: 1}\n",
		"no site":      "worker_id: a\nbooking_id: b\npings: [{distance: 1}]\n",
		"no position":  "worker_id: a\nbooking_id: b\nsite: {latitude: 1, longitude: 1}\npings: [{battery: 50}]\n",
		"unknown mark": "worker_id: a\nbooking_id: b\nsite: {latitude: 1, longitude: 1}\npings: [{distance: 1, mark: teleport}]\n",
		"bad yaml":     "worker_id: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSimulateArrivalDryRun(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, arrivalScenario))
	require.NoError(t, err)

	var out bytes.Buffer
	report, err := Simulate(context.Background(), s, SimOptions{
		DBPath: filepath.Join(t.TempDir(), "device.db"),
		Device: testDeviceConfig(),
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Ticks)
	assert.Equal(t, 5, report.Delivered)
	assert.Equal(t, 0, report.Queued)
	assert.True(t, report.FinalInside)
	assert.Equal(t, 2, report.LowBatteries)

	arrived := report.EventsOfType(models.EventArrivedOnSite)
	require.Len(t, arrived, 1)
	assert.Equal(t, models.SourceGeofenceAuto, arrived[0].Source)
	assert.Len(t, report.EventsOfType(models.EventShiftStarted), 1)
	assert.Len(t, report.EventsOfType(models.EventShiftEnded), 1)
	assert.Contains(t, out.String(), "TICK")
}

func TestSimulateOfflineBacklogAgainstServer(t *testing.T) {
	var mu sync.Mutex
	var batches [][]models.PositionSample
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tracking/samples" {
			var batch models.SampleBatch
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			mu.Lock()
			batches = append(batches, batch.Samples)
			mu.Unlock()
		}
		json.NewEncoder(w).Encode(models.IngestResponse{Success: true})
	}))
	defer server.Close()

	s, err := LoadScenario(writeScenario(t, `
worker_id: medic-7
booking_id: festival-2024
site: {latitude: 51.5074, longitude: -0.1278}
pings:
  - {distance: 300, online: false}
  - {distance: 300}
  - {distance: 300}
  - {distance: 300, online: true, mark: arrived}
`))
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "device.db")
	report, err := Simulate(context.Background(), s, SimOptions{
		DBPath:   dbPath,
		Endpoint: server.URL,
		Device:   testDeviceConfig(),
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Delivered)
	assert.Equal(t, 0, report.Queued)
	require.Len(t, report.EventsOfType(models.EventConnectionRestored), 1)
	manual := report.EventsOfType(models.EventArrivedOnSite)
	require.Len(t, manual, 1)
	assert.Equal(t, models.SourceManualButton, manual[0].Source)

	mu.Lock()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 3)
	for _, sample := range batches[1] {
		assert.True(t, sample.CapturedOffline)
	}
	mu.Unlock()

	store, err := database.OpenDevice(dbPath)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.CountQueued(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	session, err := store.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}
