package models

import "time"

// SessionStatus represents whether tracking is running for a session
type SessionStatus string

const (
	SessionInactive SessionStatus = "inactive"
	SessionActive   SessionStatus = "active"
)

// DefaultSiteRadiusMeters is used when a booking has no explicit geofence radius
const DefaultSiteRadiusMeters = 75.0

// SiteBoundary is the circular geofence around a job site
type SiteBoundary struct {
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`
}

// Radius returns the boundary radius, falling back to the default
func (b SiteBoundary) Radius() float64 {
	if b.RadiusMeters <= 0 {
		return DefaultSiteRadiusMeters
	}
	return b.RadiusMeters
}

// ShiftSession is the tracking context for one worker on one booking
type ShiftSession struct {
	WorkerID  string        `json:"worker_id"`
	BookingID string        `json:"booking_id"`
	Site      SiteBoundary  `json:"site"`
	Status    SessionStatus `json:"status"`
	StartedAt int64         `json:"started_at"`
	StoppedAt *int64        `json:"stopped_at,omitempty"`
}

// IsActive returns true while tracking is running
func (s *ShiftSession) IsActive() bool {
	return s.Status == SessionActive
}

// Duration returns how long the session has been (or was) running
func (s *ShiftSession) Duration(now time.Time) time.Duration {
	if s.StartedAt == 0 {
		return 0
	}
	end := now.UnixMilli()
	if s.StoppedAt != nil {
		end = *s.StoppedAt
	}
	if end < s.StartedAt {
		return 0
	}
	return time.Duration(end-s.StartedAt) * time.Millisecond
}
