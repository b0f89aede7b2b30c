package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	"medcover-tracking/internal/device"
	"medcover-tracking/internal/geofence"
	"medcover-tracking/internal/models"
	"medcover-tracking/internal/tracking"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted shift: a site and the pings a device would report
type Scenario struct {
	WorkerID  string              `yaml:"worker_id"`
	BookingID string              `yaml:"booking_id"`
	Site      models.SiteBoundary `yaml:"site"`
	Threshold int                 `yaml:"threshold"`
	Pings     []ScriptedPing      `yaml:"pings"`
}

// ScriptedPing is one sampling tick. Position is either absolute or a distance
// due north of the site.
type ScriptedPing struct {
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
	Distance  *float64 `yaml:"distance"`
	Accuracy  float64  `yaml:"accuracy"`
	Battery   *int     `yaml:"battery"`
	Online    *bool    `yaml:"online"`
	Mark      string   `yaml:"mark"` // "arrived" or "departed": press the manual button before the tick
	NoFix     bool     `yaml:"no_fix"`
}

// LoadScenario reads and validates a YAML scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.WorkerID == "" || s.BookingID == "" {
		return errors.New("worker_id and booking_id are required")
	}
	if s.Site.Latitude == 0 && s.Site.Longitude == 0 {
		return errors.New("site coordinates are required")
	}
	if len(s.Pings) == 0 {
		return errors.New("at least one ping is required")
	}
	for i, p := range s.Pings {
		hasAbsolute := p.Latitude != nil && p.Longitude != nil
		if !p.NoFix && !hasAbsolute && p.Distance == nil {
			return fmt.Errorf("ping %d: needs latitude/longitude or distance", i)
		}
		if p.Mark != "" && p.Mark != "arrived" && p.Mark != "departed" {
			return fmt.Errorf("ping %d: unknown mark %q", i, p.Mark)
		}
	}
	return nil
}

// Position resolves the ping to coordinates around site
func (p ScriptedPing) Position(site models.SiteBoundary) (float64, float64) {
	if p.Latitude != nil && p.Longitude != nil {
		return *p.Latitude, *p.Longitude
	}
	metersPerDegree := geofence.EarthRadiusMeters * math.Pi / 180
	return site.Latitude + *p.Distance/metersPerDegree, site.Longitude
}

// scriptedDevice replays scenario pings as the location provider and platform
type scriptedDevice struct {
	site models.SiteBoundary

	mu      sync.Mutex
	fix     tracking.Fix
	noFix   bool
	battery int
	online  bool
}

func newScriptedDevice(site models.SiteBoundary) *scriptedDevice {
	return &scriptedDevice{site: site, battery: 100, online: true}
}

// apply moves the device to the ping; unset battery and network carry over
func (d *scriptedDevice) apply(p ScriptedPing) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.noFix = p.NoFix
	if !p.NoFix {
		lat, lon := p.Position(d.site)
		accuracy := p.Accuracy
		if accuracy <= 0 {
			accuracy = 10
		}
		d.fix = tracking.Fix{Latitude: lat, Longitude: lon, Accuracy: accuracy}
	}
	if p.Battery != nil {
		d.battery = *p.Battery
	}
	if p.Online != nil {
		d.online = *p.Online
	}
}

func (d *scriptedDevice) RequestForegroundPermission(context.Context) (bool, error) { return true, nil }

func (d *scriptedDevice) RequestBackgroundPermission(context.Context) (bool, error) { return true, nil }

func (d *scriptedDevice) CurrentPosition(context.Context, tracking.Accuracy) (tracking.Fix, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.noFix {
		return tracking.Fix{}, errors.New("no GPS fix")
	}
	return d.fix, nil
}

func (d *scriptedDevice) BatteryLevel(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battery, nil
}

func (d *scriptedDevice) Network(context.Context) (device.NetworkState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.online {
		return device.NetworkState{Type: models.ConnectionNone}, nil
	}
	return device.NetworkState{Type: models.ConnectionCellular, Reachable: true}, nil
}

func (d *scriptedDevice) InBackground(context.Context) bool { return false }

// dryRunIngestor accepts everything and only logs it
type dryRunIngestor struct{}

func (dryRunIngestor) SendSamples(_ context.Context, samples []models.PositionSample) error {
	log.Printf("📤 [dry-run] %d samples", len(samples))
	return nil
}

func (dryRunIngestor) SendEvent(_ context.Context, event models.ShiftEvent) error {
	log.Printf("📤 [dry-run] event %s (%s)", event.Type, event.Source)
	return nil
}

// recordingIngestor counts what was delivered through the wrapped ingestor
type recordingIngestor struct {
	next tracking.Ingestor

	mu      sync.Mutex
	samples int
	events  []models.ShiftEvent
}

func (r *recordingIngestor) SendSamples(ctx context.Context, samples []models.PositionSample) error {
	if err := r.next.SendSamples(ctx, samples); err != nil {
		return err
	}
	r.mu.Lock()
	r.samples += len(samples)
	r.mu.Unlock()
	return nil
}

func (r *recordingIngestor) SendEvent(ctx context.Context, event models.ShiftEvent) error {
	if err := r.next.SendEvent(ctx, event); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}
