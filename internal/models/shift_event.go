package models

// ShiftEventType is a discrete lifecycle marker sent to the event endpoint
type ShiftEventType string

const (
	EventShiftStarted       ShiftEventType = "shift_started"
	EventShiftEnded         ShiftEventType = "shift_ended"
	EventArrivedOnSite      ShiftEventType = "arrived_on_site"
	EventLeftSite           ShiftEventType = "left_site"
	EventConnectionRestored ShiftEventType = "connection_restored"
)

// Valid reports whether t is a known event type
func (t ShiftEventType) Valid() bool {
	switch t {
	case EventShiftStarted, EventShiftEnded, EventArrivedOnSite, EventLeftSite, EventConnectionRestored:
		return true
	}
	return false
}

// EventSource records what produced a ShiftEvent
type EventSource string

const (
	SourceGeofenceAuto   EventSource = "geofence_auto"
	SourceManualButton   EventSource = "manual_button"
	SourceSystemDetected EventSource = "system_detected"
	SourceAdminOverride  EventSource = "admin_override"
)

func (s EventSource) Valid() bool {
	switch s {
	case SourceGeofenceAuto, SourceManualButton, SourceSystemDetected, SourceAdminOverride:
		return true
	}
	return false
}

// DeviceSnapshot captures battery and network state at the time of an event
type DeviceSnapshot struct {
	BatteryLevel   int            `json:"battery_level"`
	ConnectionType ConnectionType `json:"connection_type"`
	Reachable      bool           `json:"reachable"`
	Background     bool           `json:"background"`
}

// ShiftEvent represents an arrival, departure or session boundary
type ShiftEvent struct {
	EventID   string          `json:"event_id" db:"event_id"`
	WorkerID  string          `json:"worker_id" db:"worker_id"`
	BookingID string          `json:"booking_id" db:"booking_id"`
	Type      ShiftEventType  `json:"event_type" db:"event_type"`
	Timestamp int64           `json:"timestamp" db:"timestamp"` // unix millis
	Latitude  *float64        `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64        `json:"longitude,omitempty" db:"longitude"`
	Accuracy  *float64        `json:"accuracy,omitempty" db:"accuracy"`
	Source    EventSource     `json:"source" db:"source"`
	Notes     *string         `json:"notes,omitempty" db:"notes"`
	Device    *DeviceSnapshot `json:"device,omitempty" db:"-"`
}

// IsSiteTransition returns true for arrival and departure events
func (e *ShiftEvent) IsSiteTransition() bool {
	return e.Type == EventArrivedOnSite || e.Type == EventLeftSite
}

// WithPosition copies the coordinates of a sample onto the event
func (e *ShiftEvent) WithPosition(s PositionSample) {
	lat, lon, acc := s.Latitude, s.Longitude, s.Accuracy
	e.Latitude = &lat
	e.Longitude = &lon
	e.Accuracy = &acc
}
