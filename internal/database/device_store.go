package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"medcover-tracking/internal/models"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

// ErrCorruptQueue is returned when a persisted queue row cannot be decoded
var ErrCorruptQueue = models.ErrCorruptQueue

const activeSessionSlot = "active_session"

// DeviceStore is the on-device durable store holding the offline queue and
// the active session descriptor. Each append is a single INSERT so a crash
// can lose at most the sample being written, never corrupt earlier ones.
type DeviceStore struct {
	db *sqlx.DB
}

// OpenDevice opens (creating if needed) the SQLite file at path
func OpenDevice(path string) (*DeviceStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create tracking directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	// Single writer keeps append/remove mutually exclusive at the storage level
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`PRAGMA busy_timeout = 5000`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	store := &DeviceStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *DeviceStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS queued_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sample_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			enqueued_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("device migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database
func (s *DeviceStore) Close() error {
	return s.db.Close()
}

type queuedRow struct {
	ID         int64  `db:"id"`
	SampleID   string `db:"sample_id"`
	Payload    string `db:"payload"`
	EnqueuedAt int64  `db:"enqueued_at"`
}

// LoadQueue returns every queued sample in insertion order
func (s *DeviceStore) LoadQueue(ctx context.Context) ([]models.QueuedSample, error) {
	var rows []queuedRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, sample_id, payload, enqueued_at FROM queued_samples ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	queued := make([]models.QueuedSample, 0, len(rows))
	for _, row := range rows {
		var sample models.PositionSample
		if err := json.Unmarshal([]byte(row.Payload), &sample); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorruptQueue, row.ID, err)
		}
		queued = append(queued, models.QueuedSample{ID: row.ID, Sample: sample, EnqueuedAt: row.EnqueuedAt})
	}
	return queued, nil
}

// AppendQueued persists one sample at the tail of the queue
func (s *DeviceStore) AppendQueued(ctx context.Context, sample models.PositionSample) (models.QueuedSample, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return models.QueuedSample{}, fmt.Errorf("failed to encode sample: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queued_samples (sample_id, payload, enqueued_at) VALUES (?, ?, ?)`,
		sample.SampleID, string(payload), now,
	)
	if err != nil {
		return models.QueuedSample{}, fmt.Errorf("failed to append sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.QueuedSample{}, fmt.Errorf("failed to read queued sample id: %w", err)
	}
	return models.QueuedSample{ID: id, Sample: sample, EnqueuedAt: now}, nil
}

// RemoveQueued deletes exactly the given rows in one transaction
func (s *DeviceStore) RemoveQueued(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM queued_samples WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to remove queued samples: %w", err)
	}
	return tx.Commit()
}

// ClearQueue drops every queued sample
func (s *DeviceStore) ClearQueue(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_samples`); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// CountQueued returns how many samples are waiting for delivery
func (s *DeviceStore) CountQueued(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM queued_samples`); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// LoadSession returns the persisted active session, or nil if there is none
func (s *DeviceStore) LoadSession(ctx context.Context) (*models.ShiftSession, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM slots WHERE name = ?`, activeSessionSlot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.ShiftSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// SaveSession writes the active session descriptor
func (s *DeviceStore) SaveSession(ctx context.Context, session models.ShiftSession) error {
	value, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, activeSessionSlot, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ClearSession removes the active session descriptor
func (s *DeviceStore) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, activeSessionSlot); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
