package database

import (
	"encoding/json"
	"fmt"

	"medcover-tracking/internal/models"

	"github.com/jmoiron/sqlx"
)

// IngestStore binds the ingestion queries to a connection
type IngestStore struct {
	db *sqlx.DB
}

func NewIngestStore(db *sqlx.DB) *IngestStore {
	return &IngestStore{db: db}
}

func (s *IngestStore) SaveSamples(samples []models.PositionSample) (int, int, error) {
	return InsertSamples(s.db, samples)
}

func (s *IngestStore) SaveShiftEvent(event models.ShiftEvent) error {
	return InsertShiftEvent(s.db, event)
}

func (s *IngestStore) BookingTrail(bookingID string) ([]models.PositionSample, error) {
	return GetBookingTrail(s.db, bookingID)
}

// InsertSamples stores a batch of samples in one transaction.
// Samples whose sample_id was already received are skipped and counted as duplicates.
func InsertSamples(db *sqlx.DB, samples []models.PositionSample) (accepted int, duplicates int, err error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO position_samples (
			sample_id, worker_id, booking_id, latitude, longitude, accuracy,
			altitude, heading, speed, battery_level, connection_type, timestamp,
			captured_offline, background
		) VALUES (
			:sample_id, :worker_id, :booking_id, :latitude, :longitude, :accuracy,
			:altitude, :heading, :speed, :battery_level, :connection_type, :timestamp,
			:captured_offline, :background
		)
		ON CONFLICT (sample_id) DO NOTHING
	`

	for _, s := range samples {
		res, err := tx.NamedExec(query, s)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert sample %s: %w", s.SampleID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			duplicates++
		} else {
			accepted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit samples: %w", err)
	}
	return accepted, duplicates, nil
}

// InsertShiftEvent stores one shift event; a repeated event_id is ignored
func InsertShiftEvent(db *sqlx.DB, event models.ShiftEvent) error {
	var device []byte
	if event.Device != nil {
		var err error
		device, err = json.Marshal(event.Device)
		if err != nil {
			return fmt.Errorf("failed to encode device snapshot: %w", err)
		}
	}

	_, err := db.Exec(`
		INSERT INTO shift_events (
			event_id, worker_id, booking_id, event_type, timestamp,
			latitude, longitude, accuracy, source, notes, device
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`,
		event.EventID, event.WorkerID, event.BookingID, event.Type, event.Timestamp,
		event.Latitude, event.Longitude, event.Accuracy, event.Source, event.Notes, nullableJSON(device),
	)
	if err != nil {
		return fmt.Errorf("failed to insert shift event: %w", err)
	}
	return nil
}

// GetBookingTrail returns the stored samples for a booking in capture order
func GetBookingTrail(db *sqlx.DB, bookingID string) ([]models.PositionSample, error) {
	var samples []models.PositionSample
	query := `SELECT sample_id, worker_id, booking_id, latitude, longitude, accuracy,
	                 altitude, heading, speed, battery_level, connection_type, timestamp,
	                 captured_offline, background
	          FROM position_samples
	          WHERE booking_id = $1
	          ORDER BY timestamp ASC`

	if err := db.Select(&samples, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking trail: %w", err)
	}
	return samples, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
