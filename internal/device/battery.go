package device

import (
	"context"
	"log"
	"sync"
)

// DefaultLowBatteryPercent is the level at or below which a warning is raised
const DefaultLowBatteryPercent = 20

// Notifier delivers the advisory low-battery notice
type Notifier interface {
	NotifyLowBattery(ctx context.Context, level int)
}

// LogNotifier writes the notice to the log
type LogNotifier struct{}

func (LogNotifier) NotifyLowBattery(_ context.Context, level int) {
	log.Printf("🪫 Battery low (%d%%) - location tracking may stop if the device powers off", level)
}

// BatteryMonitor is a one-shot latch: it warns the first time the level drops
// to the threshold and stays quiet until the level rises back above it.
type BatteryMonitor struct {
	threshold int
	notifier  Notifier

	mu      sync.Mutex
	latched bool
}

// NewBatteryMonitor creates a monitor; a nil notifier logs
func NewBatteryMonitor(threshold int, notifier Notifier) *BatteryMonitor {
	if threshold <= 0 {
		threshold = DefaultLowBatteryPercent
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &BatteryMonitor{threshold: threshold, notifier: notifier}
}

// Observe records a battery reading and returns true if a warning was emitted
func (m *BatteryMonitor) Observe(ctx context.Context, level int) bool {
	m.mu.Lock()
	if level > m.threshold {
		m.latched = false
		m.mu.Unlock()
		return false
	}
	if m.latched {
		m.mu.Unlock()
		return false
	}
	m.latched = true
	m.mu.Unlock()

	m.notifier.NotifyLowBattery(ctx, level)
	return true
}

// Reset re-arms the latch, used when a new session starts
func (m *BatteryMonitor) Reset() {
	m.mu.Lock()
	m.latched = false
	m.mu.Unlock()
}
