package tracking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSchedulerRunning is returned by Start when a unit is already scheduled
var ErrSchedulerRunning = errors.New("scheduler already running")

// Scheduler runs one unit of work every interval while started.
// Implementations must not overlap runs of the unit, and Stop must not
// return while a run is in flight.
type Scheduler interface {
	Start(interval time.Duration, unit func(ctx context.Context)) error
	Stop()
}

// TickerScheduler drives the unit from a time.Ticker in its own goroutine
type TickerScheduler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTickerScheduler creates a stopped scheduler
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

func (s *TickerScheduler) Start(interval time.Duration, unit func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				// In-flight network calls finish or time out on their own
				unit(context.WithoutCancel(ctx))
			}
		}
	}()
	return nil
}

func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ManualScheduler runs the unit only when Fire is called. Used by tests and
// the simulator to step through samples deterministically.
type ManualScheduler struct {
	mu       sync.Mutex
	runMu    sync.Mutex
	unit     func(ctx context.Context)
	interval time.Duration
	fired    int
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Start(interval time.Duration, unit func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unit != nil {
		return ErrSchedulerRunning
	}
	s.unit = unit
	s.interval = interval
	return nil
}

func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	s.unit = nil
	s.mu.Unlock()

	// Wait for a Fire in progress
	s.runMu.Lock()
	s.runMu.Unlock()
}

// Fire runs the unit once and reports whether it was scheduled
func (s *ManualScheduler) Fire(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	unit := s.unit
	if unit != nil {
		s.fired++
	}
	s.mu.Unlock()

	if unit == nil {
		return false
	}
	unit(ctx)
	return true
}

// Running reports whether a unit is scheduled
func (s *ManualScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unit != nil
}

// Interval returns the interval passed to Start
func (s *ManualScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Fired returns how many times the unit has run
func (s *ManualScheduler) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}
