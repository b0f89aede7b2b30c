package tracking

import (
	"context"

	"medcover-tracking/internal/models"
)

// Accuracy is the provider hint passed when requesting a position fix
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyHighest
)

// Fix is one position reading from the OS location service
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters
	Altitude  *float64
	Heading   *float64
	Speed     *float64
}

// LocationProvider is the OS location integration
type LocationProvider interface {
	RequestForegroundPermission(ctx context.Context) (bool, error)
	RequestBackgroundPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context, accuracy Accuracy) (Fix, error)
}

// Ingestor delivers samples and events to the remote endpoints
type Ingestor interface {
	SendSamples(ctx context.Context, samples []models.PositionSample) error
	SendEvent(ctx context.Context, event models.ShiftEvent) error
}

// NetworkChecker reports connectivity
type NetworkChecker interface {
	Connectivity(ctx context.Context) (models.ConnectionType, bool)
}

// ErrCorruptQueue must wrap LoadQueue errors caused by undecodable rows
var ErrCorruptQueue = models.ErrCorruptQueue

// QueueStorage is the durable backing for the offline queue
type QueueStorage interface {
	LoadQueue(ctx context.Context) ([]models.QueuedSample, error)
	AppendQueued(ctx context.Context, sample models.PositionSample) (models.QueuedSample, error)
	RemoveQueued(ctx context.Context, ids []int64) error
	ClearQueue(ctx context.Context) error
}

// SessionStorage holds the active session descriptor across restarts
type SessionStorage interface {
	LoadSession(ctx context.Context) (*models.ShiftSession, error)
	SaveSession(ctx context.Context, session models.ShiftSession) error
	ClearSession(ctx context.Context) error
}
