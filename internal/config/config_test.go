package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDeviceDefaults(t *testing.T) {
	for _, key := range []string{
		"TRACKING_DB_PATH", "INGEST_BASE_URL", "INGEST_TOKEN", "SAMPLE_INTERVAL_SECONDS",
		"GEOFENCE_RADIUS_METERS", "GEOFENCE_THRESHOLD", "QUEUE_BATCH_SIZE",
		"LOW_BATTERY_PERCENT", "SEND_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadDevice()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SampleInterval)
	assert.Equal(t, 75.0, cfg.SiteRadiusMeters)
	assert.Equal(t, 3, cfg.GeofenceThreshold)
	assert.Equal(t, 50, cfg.QueueBatchSize)
	assert.Equal(t, 20, cfg.LowBatteryPercent)
	assert.Equal(t, 15*time.Second, cfg.SendTimeout)
	assert.Equal(t, "tracking.db", filepath.Base(cfg.DBPath))
}

func TestLoadDeviceOverrides(t *testing.T) {
	t.Setenv("TRACKING_DB_PATH", "/tmp/t.db")
	t.Setenv("SAMPLE_INTERVAL_SECONDS", "5")
	t.Setenv("GEOFENCE_RADIUS_METERS", "120.5")
	t.Setenv("QUEUE_BATCH_SIZE", "10")

	cfg, err := LoadDevice()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/t.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.SampleInterval)
	assert.Equal(t, 120.5, cfg.SiteRadiusMeters)
	assert.Equal(t, 10, cfg.QueueBatchSize)
}

func TestLoadDeviceRejectsBadValues(t *testing.T) {
	t.Setenv("GEOFENCE_THRESHOLD", "three")
	_, err := LoadDevice()
	assert.ErrorContains(t, err, "GEOFENCE_THRESHOLD")

	t.Setenv("GEOFENCE_THRESHOLD", "")
	t.Setenv("GEOFENCE_RADIUS_METERS", "-4")
	_, err = LoadDevice()
	assert.ErrorContains(t, err, "must be positive")
}

func TestLoadServerRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadServer()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/tracking")
	t.Setenv("PORT", "")
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "supervisors", cfg.FCMSupervisorTopic)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FCM_SUPERVISOR_TOPIC=medics-on-call\n"), 0o600))
	t.Setenv("DATABASE_URL", "postgres://localhost/tracking")
	t.Setenv("FCM_SUPERVISOR_TOPIC", "")
	os.Unsetenv("FCM_SUPERVISOR_TOPIC")

	LoadEnv(path)

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "medics-on-call", cfg.FCMSupervisorTopic)
}
