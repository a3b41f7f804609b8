package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// Logger is the structured logger used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Job is one tick of work.
type Job func(ctx context.Context)

// Scheduler invokes a Job every interval until stopped.
type Scheduler struct {
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	cron    *gocron.Scheduler
	cancel  context.CancelFunc
	started bool
}

// New creates a stopped scheduler.
func New(interval time.Duration, logger Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %v", interval)
	}
	return &Scheduler{interval: interval, logger: logger}, nil
}

// Start schedules job every interval, starting immediately, and returns.
// The job receives a context that is cancelled when ctx is done or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	if _, err := cron.Every(s.interval).Do(func() {
		if runCtx.Err() != nil {
			return
		}
		job(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("scheduler: scheduling job: %w", err)
	}

	cron.StartAsync()

	s.cron = cron
	s.cancel = cancel
	s.started = true

	if s.logger != nil {
		s.logger.Info("control loop scheduled", "interval", s.interval.String())
	}
	return nil
}

// Stop cancels the running job's context and stops the schedule. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.cron.Stop()
	s.started = false

	if s.logger != nil {
		s.logger.Debug("control loop stopped")
	}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
