package monitoring

import (
	"context"
	"sync"
	"time"

	"loadcast/pkg/logger"
)

// CycleFunc runs one monitoring cycle.
type CycleFunc func(ctx context.Context)

// Scheduler runs a cycle function on a fixed interval in a background
// goroutine. Start is idempotent: calling it while running warns and does
// nothing. Stop waits a bounded grace period for an in-flight cycle.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	cycle    CycleFunc
	logger   *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(interval, stopGrace time.Duration, cycle CycleFunc, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if stopGrace <= 0 {
		stopGrace = 5 * time.Second
	}
	return &Scheduler{
		interval: interval,
		grace:    stopGrace,
		cycle:    cycle,
		logger:   log,
	}
}

// Start launches the ticker goroutine. A no-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("monitoring scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	s.logger.Info("monitoring scheduler started",
		logger.Duration("interval", s.interval))
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// Stop cancels the loop and waits up to the grace period for the current
// cycle to finish. A no-op when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.grace):
		s.logger.Warn("monitoring scheduler did not stop within grace period",
			logger.Duration("grace", s.grace))
	}
	s.logger.Info("monitoring scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
