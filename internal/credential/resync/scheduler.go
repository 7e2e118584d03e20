// Package resync runs the periodic ledger-to-cache reconciliation.
package resync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"certledger/internal/credential/models"
)

// Resyncer reconciles the cache against the ledger.
type Resyncer interface {
	Resync(ctx context.Context) (*models.ResyncReport, error)
}

// Scheduler runs Resync on a fixed interval. Runs never overlap: a pass that
// outlasts the interval delays the next one.
type Scheduler struct {
	resyncer  Resyncer
	scheduler gocron.Scheduler
	logger    *slog.Logger
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithPassTimeout bounds a single resync pass.
func WithPassTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScheduler creates a scheduler that calls r every interval. The first
// pass runs as soon as Start is called.
func NewScheduler(r Resyncer, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("resync interval must be positive, got %s", interval)
	}
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		resyncer:  r,
		scheduler: gs,
		logger:    slog.Default(),
		timeout:   interval,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	_, err = gs.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run),
		gocron.WithName("cache-resync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = gs.Shutdown()
		return nil, fmt.Errorf("schedule resync job: %w", err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.logger.Info("starting cache resync scheduler")
	s.scheduler.Start()
}

// Stop cancels any running pass and waits for it to return.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping cache resync scheduler")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error("failed to shut down resync scheduler", "error", err)
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if _, err := s.resyncer.Resync(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled cache resync failed", "error", err)
	}
}
