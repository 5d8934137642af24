package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"helpdesk-mail-go/internal/config"
)

// Reconciler is the poll the scheduler triggers.
type Reconciler interface {
	ReconcileNewMail(ctx context.Context) error
}

// Scheduler manages the periodic mail reconciliation
type Scheduler struct {
	cron       *cron.Cron
	entryID    cron.EntryID
	config     *config.SchedulerConfig
	reconciler Reconciler
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	isRunning  bool
	mu         sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, reconciler Reconciler) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:       newCron(),
		config:     cfg,
		reconciler: reconciler,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func newCron() *cron.Cron {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(logger)))
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// A stopped scheduler has a cancelled context and a stopped cron.
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.cron = newCron()
	}

	schedule := fmt.Sprintf("@every %dm", s.config.IntervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, s.reconcile)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// reconcile is the cron job.
func (s *Scheduler) reconcile() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping reconcile cycle")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if err := s.run(ctx); err != nil {
		logrus.Errorf("Scheduled reconcile failed: %v", err)
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Starting reconcile cycle")
	startTime := time.Now()

	if err := s.reconciler.ReconcileNewMail(ctx); err != nil {
		return err
	}

	logrus.Infof("Reconcile cycle completed in %v", time.Since(startTime))
	return nil
}

// RunOnce runs one reconcile cycle immediately, whether or not the
// scheduler is running.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	logrus.Info("Running reconcile once")
	return s.run(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for in-flight cycles to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
