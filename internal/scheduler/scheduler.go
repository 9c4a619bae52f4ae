package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)
	log      *zap.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu  sync.Mutex
	lastTick time.Time
	lastDur  time.Duration
	ticks    int64
}

type Status struct {
	Running        bool       `json:"running"`
	Interval       string     `json:"interval"`
	Ticks          int64      `json:"ticks"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
	LastDurationMs int64      `json:"last_duration_ms"`
}

func New(interval time.Duration, tickFn func(context.Context), log *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      log.Named("scheduler"),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the ticker loop and runs the first tick immediately.
// It reports false if the scheduler was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", zap.Duration("interval", s.interval))

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the running tick and waits for the loop to exit.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st := Status{
		Running:        s.running.Load(),
		Interval:       s.interval.String(),
		Ticks:          s.ticks,
		LastDurationMs: s.lastDur.Milliseconds(),
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTickAt = &t
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", zap.Any("panic", r))
		}
		s.record(start, time.Since(start))
	}()

	s.tickFn(ctx)
	s.log.Debug("scheduler tick completed", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
}

func (s *Scheduler) record(at time.Time, d time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.lastTick = at
	s.lastDur = d
	s.ticks++
}
