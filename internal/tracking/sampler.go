package tracking

import (
	"context"
	"fmt"
	"time"

	"medcover-tracking/internal/device"
	"medcover-tracking/internal/models"

	"github.com/google/uuid"
)

// DefaultSampleInterval is the fixed cadence of position sampling
const DefaultSampleInterval = 30 * time.Second

// Sampler assembles one PositionSample from a fresh fix and the device context
type Sampler struct {
	location LocationProvider
	device   *device.ContextProvider
	battery  *device.BatteryMonitor
	now      func() time.Time
}

// NewSampler creates a sampler; battery may be nil to skip low-battery checks
func NewSampler(location LocationProvider, dev *device.ContextProvider, battery *device.BatteryMonitor) *Sampler {
	return &Sampler{
		location: location,
		device:   dev,
		battery:  battery,
		now:      time.Now,
	}
}

// Sample reads the device context and a highest-accuracy fix for the session.
// Device context failures fall back to defaults; only a failed fix is an error.
func (s *Sampler) Sample(ctx context.Context, session models.ShiftSession) (models.PositionSample, error) {
	battery := s.device.BatteryLevel(ctx)
	if s.battery != nil {
		s.battery.Observe(ctx, battery)
	}
	connType, _ := s.device.Connectivity(ctx)
	background := s.device.InBackground(ctx)

	fix, err := s.location.CurrentPosition(ctx, AccuracyHighest)
	if err != nil {
		return models.PositionSample{}, fmt.Errorf("failed to read position: %w", err)
	}

	return models.PositionSample{
		SampleID:       uuid.New().String(),
		WorkerID:       session.WorkerID,
		BookingID:      session.BookingID,
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		Accuracy:       fix.Accuracy,
		Altitude:       fix.Altitude,
		Heading:        fix.Heading,
		Speed:          fix.Speed,
		BatteryLevel:   battery,
		ConnectionType: connType,
		Timestamp:      s.now().UnixMilli(),
		Background:     background,
	}, nil
}
