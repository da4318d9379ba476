// Package jobs runs the gateway's reconciliation loops.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "starmf-gateway/internal/errors"
	"starmf-gateway/internal/logging"
)

// Task is one reconciliation job body. A task failing leaves the next tick
// unaffected.
type Task func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	task     Task
}

// Scheduler runs registered tasks on fixed intervals. Each job gets its own
// ticker goroutine; jobs of different kinds run independently, but one kind
// never overlaps itself because the loop is sequential per job.
type Scheduler struct {
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
	stop context.CancelFunc
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Every registers a task to run on the given interval. Registration after
// Start has no effect on the running set.
func (s *Scheduler) Every(interval time.Duration, name string, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &job{name: name, interval: interval, task: task}
}

// Start launches one ticker loop per registered job. The first run happens
// after one full interval; startup is not a thundering herd of API calls.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.run(runCtx, j)
	}
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.wg.Done()

	logger := logging.WithJob(s.logger, j.name)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, j, logger)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job, logger zerolog.Logger) {
	start := time.Now()
	err := j.task(ctx)
	duration := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("Job failed")
		return
	}
	logger.Debug().Dur("duration", duration).Msg("Job completed")
}

// Trigger runs one job immediately, outside its schedule. Used by the CLI
// and by tests.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return apperrors.Wrapf(apperrors.ErrDataNotFound, "unknown job %q", name)
	}
	return j.task(ctx)
}

// Names returns the registered job names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Stop cancels the ticker loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}
