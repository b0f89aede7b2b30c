package device

import (
	"context"
	"log"

	"medcover-tracking/internal/models"
)

const (
	// DefaultBatteryLevel is reported when the battery cannot be read.
	// Optimistic so that a transient read error does not raise a low-battery alarm.
	DefaultBatteryLevel = 100
)

// NetworkState is what the platform reports about connectivity
type NetworkState struct {
	Type      models.ConnectionType
	Reachable bool
}

// Platform is the OS integration that reads battery, network and app state
type Platform interface {
	BatteryLevel(ctx context.Context) (int, error)
	Network(ctx context.Context) (NetworkState, error)
	InBackground(ctx context.Context) bool
}

// ContextProvider reads device state on demand and degrades to documented
// defaults instead of failing
type ContextProvider struct {
	platform Platform
}

// NewContextProvider creates a provider over a platform adapter
func NewContextProvider(platform Platform) *ContextProvider {
	return &ContextProvider{platform: platform}
}

// BatteryLevel returns the battery percentage, or 100 if it cannot be read
func (p *ContextProvider) BatteryLevel(ctx context.Context) int {
	level, err := p.platform.BatteryLevel(ctx)
	if err != nil {
		log.Printf("⚠️  Battery read failed: %v (assuming %d%%)", err, DefaultBatteryLevel)
		return DefaultBatteryLevel
	}
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// Connectivity returns the connection type and whether the network is reachable.
// Read failures report unknown/unreachable so callers queue instead of sending.
func (p *ContextProvider) Connectivity(ctx context.Context) (models.ConnectionType, bool) {
	state, err := p.platform.Network(ctx)
	if err != nil {
		log.Printf("⚠️  Network state read failed: %v (treating as offline)", err)
		return models.ConnectionUnknown, false
	}
	if state.Type == "" {
		state.Type = models.ConnectionUnknown
	}
	return state.Type, state.Reachable
}

// InBackground reports whether the host app is currently backgrounded
func (p *ContextProvider) InBackground(ctx context.Context) bool {
	return p.platform.InBackground(ctx)
}

// Snapshot collects the full device context for attaching to events
func (p *ContextProvider) Snapshot(ctx context.Context) models.DeviceSnapshot {
	connType, reachable := p.Connectivity(ctx)
	return models.DeviceSnapshot{
		BatteryLevel:   p.BatteryLevel(ctx),
		ConnectionType: connType,
		Reachable:      reachable,
		Background:     p.InBackground(ctx),
	}
}
