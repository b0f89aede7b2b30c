package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the ingestion server's Postgres database
func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🔌 DATABASE CONNECTION ATTEMPT")
	log.Printf("   📍 Database URL length: %d characters", len(dbURL))
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Println("❌ DATABASE CONNECTION FAILED AT sqlx.Connect()")
		log.Printf("   Error type: %T", err)
		log.Printf("   Error message: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Println("❌ DATABASE CONNECTION FAILED AT Ping()")
		log.Printf("   Error message: %v", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ DATABASE CONNECTION SUCCESSFUL")
	return db, nil
}

// Migrate creates the ingestion schema
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Position samples, deduplicated by the client-generated sample_id
		`CREATE TABLE IF NOT EXISTS position_samples (
			id BIGSERIAL PRIMARY KEY,
			sample_id TEXT NOT NULL UNIQUE,
			worker_id TEXT NOT NULL,
			booking_id TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			altitude DOUBLE PRECISION,
			heading DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			battery_level INT NOT NULL,
			connection_type TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			captured_offline BOOLEAN NOT NULL DEFAULT FALSE,
			background BOOLEAN NOT NULL DEFAULT FALSE,
			received_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_samples_booking ON position_samples(booking_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_position_samples_worker ON position_samples(worker_id, timestamp DESC)`,

		// Shift events
		`CREATE TABLE IF NOT EXISTS shift_events (
			event_id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			booking_id TEXT NOT NULL,
			event_type TEXT NOT NULL CHECK(event_type IN ('shift_started', 'shift_ended', 'arrived_on_site', 'left_site', 'connection_restored')),
			timestamp BIGINT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			accuracy DOUBLE PRECISION,
			source TEXT NOT NULL CHECK(source IN ('geofence_auto', 'manual_button', 'system_detected', 'admin_override')),
			notes TEXT,
			device JSONB,
			received_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shift_events_booking ON shift_events(booking_id, timestamp)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("✓ Database migrations completed")
	return nil
}
