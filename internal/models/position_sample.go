package models

import "errors"

// ErrCorruptQueue marks a persisted queue that cannot be decoded. Only this
// error allows the queue to be discarded on restore.
var ErrCorruptQueue = errors.New("offline queue is corrupt")

// ConnectionType labels the network the device was on when a sample was captured
type ConnectionType string

const (
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionNone     ConnectionType = "none"
	ConnectionUnknown  ConnectionType = "unknown"
)

// PositionSample represents one GPS observation taken during an active shift
type PositionSample struct {
	SampleID        string         `json:"sample_id" db:"sample_id"` // Client-generated idempotency key
	WorkerID        string         `json:"worker_id" db:"worker_id"`
	BookingID       string         `json:"booking_id" db:"booking_id"`
	Latitude        float64        `json:"latitude" db:"latitude"`
	Longitude       float64        `json:"longitude" db:"longitude"`
	Accuracy        float64        `json:"accuracy" db:"accuracy"`           // Horizontal accuracy in meters
	Altitude        *float64       `json:"altitude,omitempty" db:"altitude"` // Meters above sea level
	Heading         *float64       `json:"heading,omitempty" db:"heading"`   // Direction of travel (0-360 degrees)
	Speed           *float64       `json:"speed,omitempty" db:"speed"`       // Speed in m/s
	BatteryLevel    int            `json:"battery_level" db:"battery_level"` // 0-100
	ConnectionType  ConnectionType `json:"connection_type" db:"connection_type"`
	Timestamp       int64          `json:"timestamp" db:"timestamp"`               // Capture time, unix millis
	CapturedOffline bool           `json:"captured_offline" db:"captured_offline"` // Set when the sample went through the offline queue
	Background      bool           `json:"background" db:"background"`             // App was backgrounded at capture
}

// SampleBatch is the request body accepted by the ingestion endpoint
type SampleBatch struct {
	Samples []PositionSample `json:"samples"`
}

// IngestResponse is returned by the ingestion and event endpoints
type IngestResponse struct {
	Success    bool   `json:"success"`
	Accepted   int    `json:"accepted,omitempty"`
	Duplicates int    `json:"duplicates,omitempty"`
	Error      string `json:"error,omitempty"`
}

// QueuedSample is a PositionSample persisted on the device awaiting delivery
type QueuedSample struct {
	ID         int64          `json:"id" db:"id"`
	Sample     PositionSample `json:"sample"`
	EnqueuedAt int64          `json:"enqueued_at" db:"enqueued_at"`
}
