package logstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
)

// DefaultSchedule runs the sweep shortly after midnight.
const DefaultSchedule = "5 0 * * *"

// sweepTimeout bounds one scheduled sweep.
const sweepTimeout = 5 * time.Minute

// Scheduler runs a Sweeper on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses expr (a five-field cron expression or a descriptor
// such as "@daily") and returns a stopped Scheduler.
func NewScheduler(expr string, sweeper *Sweeper) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", expr, err)
	}

	s := &Scheduler{cron: cron.New(), sweeper: sweeper}
	s.cron.Schedule(schedule, cron.FuncJob(s.run))
	return s, nil
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		logging.Warn("log retention sweep failed", zap.Error(err), zap.Int("deleted", n))
		return
	}
	logging.Info("log retention sweep completed",
		zap.Int("deleted", n),
		zap.Duration("duration", time.Since(start)))
}

// Start runs a sweep immediately, then on schedule until ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run()
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}
