// Copyright (c) 2025 Justin Cranford
//
//

package rotation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is the Rotation Scheduler (C6): a single long-running
// cooperative task that ticks the engine at an adaptive period derived
// once from the configured rotation interval.
type Scheduler struct {
	logger   *slog.Logger
	engine   *Engine
	interval time.Duration
	tick     time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewScheduler constructs a Scheduler for the given rotation interval.
func NewScheduler(logger *slog.Logger, engine *Engine, rotationInterval time.Duration) *Scheduler {
	return &Scheduler{
		logger: logger, engine: engine, interval: rotationInterval,
		tick: tickPeriodFor(rotationInterval),
	}
}

// tickPeriodFor implements the adaptive tick table of §4.6.
func tickPeriodFor(rotationInterval time.Duration) time.Duration {
	switch {
	case rotationInterval < 5*time.Minute:
		return 10 * time.Second
	case rotationInterval < 24*time.Hour:
		return time.Minute
	default:
		return time.Hour
	}
}

// Start launches the background tick loop. Idempotent: calling Start
// again while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go s.run(runCtx)
}

// Stop cancels the task and returns once it has observed cancellation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-stopped
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick executes one scheduler tick. Panics and errors inside a tick
// are caught, logged, and never kill the task.
func (s *Scheduler) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rotation scheduler tick panicked", "panic", r)
		}
	}()

	if err := s.engine.CheckAndRotateIfNeeded(ctx); err != nil {
		s.logger.Error("rotation check failed", "error", err)
	}

	if err := s.engine.CheckAndActivatePendingKeys(ctx); err != nil {
		s.logger.Error("pending key activation check failed", "error", err)
	}
}
