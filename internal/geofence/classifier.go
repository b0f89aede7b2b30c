package geofence

import (
	"fmt"
	"time"

	"medcover-tracking/internal/models"

	"github.com/google/uuid"
)

// DefaultThreshold is the number of consecutive same-side samples needed to flip state
const DefaultThreshold = 3

// State is the classifier memory for one active session
type State struct {
	Inside             bool   `json:"inside"`
	ConsecutiveInside  int    `json:"consecutive_inside"`
	ConsecutiveOutside int    `json:"consecutive_outside"`
	LastEntry          *int64 `json:"last_entry,omitempty"` // unix millis
	LastExit           *int64 `json:"last_exit,omitempty"`  // unix millis
}

// Result describes what a single sample did to the classifier
type Result struct {
	Distance float64
	Inside   bool // Which side of the boundary this sample fell on
	State    State
	Event    *models.ShiftEvent // Non-nil only when the sample crossed the threshold
}

// Classifier detects arrival and departure against a circular site boundary.
// A state change requires Threshold consecutive samples on the new side so that
// a single noisy fix cannot flip it.
type Classifier struct {
	site      models.SiteBoundary
	threshold int
	state     State
	workerID  string
	bookingID string
}

// NewClassifier creates a classifier in the OUTSIDE state for a session
func NewClassifier(session models.ShiftSession, threshold int) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{
		site:      session.Site,
		threshold: threshold,
		workerID:  session.WorkerID,
		bookingID: session.BookingID,
	}
}

// Observe feeds one sample into the state machine
func (c *Classifier) Observe(sample models.PositionSample) Result {
	radius := c.site.Radius()
	distance := Haversine(sample.Latitude, sample.Longitude, c.site.Latitude, c.site.Longitude)
	inside := distance <= radius

	if inside {
		c.state.ConsecutiveInside++
		c.state.ConsecutiveOutside = 0
	} else {
		c.state.ConsecutiveOutside++
		c.state.ConsecutiveInside = 0
	}

	result := Result{Distance: distance, Inside: inside}

	switch {
	case inside && !c.state.Inside && c.state.ConsecutiveInside >= c.threshold:
		c.state.Inside = true
		at := sample.Timestamp
		c.state.LastEntry = &at
		result.Event = c.transitionEvent(models.EventArrivedOnSite, sample, distance, radius, c.state.ConsecutiveInside)

	case !inside && c.state.Inside && c.state.ConsecutiveOutside >= c.threshold:
		c.state.Inside = false
		at := sample.Timestamp
		c.state.LastExit = &at
		result.Event = c.transitionEvent(models.EventLeftSite, sample, distance, radius, c.state.ConsecutiveOutside)
	}

	result.State = c.State()
	return result
}

// State returns a copy of the current classifier memory
func (c *Classifier) State() State {
	s := c.state
	if c.state.LastEntry != nil {
		v := *c.state.LastEntry
		s.LastEntry = &v
	}
	if c.state.LastExit != nil {
		v := *c.state.LastExit
		s.LastExit = &v
	}
	return s
}

// Reset returns the classifier to OUTSIDE with zeroed counters
func (c *Classifier) Reset() {
	c.state = State{}
}

func (c *Classifier) transitionEvent(eventType models.ShiftEventType, sample models.PositionSample, distance, radius float64, count int) *models.ShiftEvent {
	verb := "inside"
	if eventType == models.EventLeftSite {
		verb = "outside"
	}
	notes := fmt.Sprintf("Auto-detected: %.0fm from site (radius %.0fm), %d consecutive pings %s", distance, radius, count, verb)

	ts := sample.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	event := &models.ShiftEvent{
		EventID:   uuid.New().String(),
		WorkerID:  c.workerID,
		BookingID: c.bookingID,
		Type:      eventType,
		Timestamp: ts,
		Source:    models.SourceGeofenceAuto,
		Notes:     &notes,
	}
	event.WithPosition(sample)
	return event
}
