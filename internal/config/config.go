package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Device holds the settings for the on-device tracker
type Device struct {
	DBPath            string
	IngestBaseURL     string
	IngestToken       string
	SampleInterval    time.Duration
	SiteRadiusMeters  float64
	GeofenceThreshold int
	QueueBatchSize    int
	LowBatteryPercent int
	SendTimeout       time.Duration
}

// Server holds the settings for the ingestion server
type Server struct {
	DatabaseURL         string
	Port                string
	JWTSecret           string
	FirebaseCredsBase64 string
	FirebaseCredsFile   string
	FCMSupervisorTopic  string
}

// LoadEnv loads a .env file if one exists. Missing files are not an error.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("⚠️  .env file not found, using environment variables from system")
		return
	}
	log.Println("✅ .env file loaded successfully")
}

// LoadDevice reads device settings from the environment
func LoadDevice() (Device, error) {
	cfg := Device{
		DBPath:        getString("TRACKING_DB_PATH", defaultDBPath()),
		IngestBaseURL: os.Getenv("INGEST_BASE_URL"),
		IngestToken:   os.Getenv("INGEST_TOKEN"),
	}

	seconds, err := getInt("SAMPLE_INTERVAL_SECONDS", 30)
	if err != nil {
		return Device{}, err
	}
	cfg.SampleInterval = time.Duration(seconds) * time.Second

	if cfg.SiteRadiusMeters, err = getFloat("GEOFENCE_RADIUS_METERS", 75); err != nil {
		return Device{}, err
	}
	if cfg.GeofenceThreshold, err = getInt("GEOFENCE_THRESHOLD", 3); err != nil {
		return Device{}, err
	}
	if cfg.QueueBatchSize, err = getInt("QUEUE_BATCH_SIZE", 50); err != nil {
		return Device{}, err
	}
	if cfg.LowBatteryPercent, err = getInt("LOW_BATTERY_PERCENT", 20); err != nil {
		return Device{}, err
	}

	seconds, err = getInt("SEND_TIMEOUT_SECONDS", 15)
	if err != nil {
		return Device{}, err
	}
	cfg.SendTimeout = time.Duration(seconds) * time.Second

	return cfg, nil
}

// LoadServer reads ingestion server settings from the environment
func LoadServer() (Server, error) {
	cfg := Server{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Port:                getString("PORT", "8080"),
		JWTSecret:           os.Getenv("APP_JWT_SECRET"),
		FirebaseCredsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
		FirebaseCredsFile:   getString("FIREBASE_CREDENTIALS_FILE", "./firebase-service-account.json"),
		FCMSupervisorTopic:  getString("FCM_SUPERVISOR_TOPIC", "supervisors"),
	}
	if cfg.DatabaseURL == "" {
		return Server{}, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".medcover", "tracking.db")
	}
	return filepath.Join(home, ".medcover", "tracking.db")
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return f, nil
}
