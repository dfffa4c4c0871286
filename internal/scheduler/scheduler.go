// Package scheduler drives folio's periodic background work, a thin
// wrapper over robfig/cron with per-run outcome logging.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of scheduled work.
type Job interface {
	Name() string
	Run() error
}

// Scheduler runs registered jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	jobs []string
}

// New creates an empty scheduler. Schedules use the six-field format
// with seconds, so "0 */30 * * * *" runs every thirty minutes.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job under a cron schedule.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.run(job) }); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}

	s.jobs = append(s.jobs, job.Name())
	s.log.Info().
		Str("job", job.Name()).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// RunNow executes a job outside its schedule with the same outcome
// logging a scheduled run gets. Used to prime prices at startup instead
// of waiting for the first cron tick.
func (s *Scheduler) RunNow(job Job) {
	s.run(job)
}

// Start begins dispatching scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts dispatch and blocks until a run in progress finishes, so
// shutdown never interrupts a refresh mid-snapshot.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Job starting")

	if err := job.Run(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed_ms", time.Since(start)).
			Msg("Job failed")
		return
	}

	s.log.Debug().
		Str("job", job.Name()).
		Dur("elapsed_ms", time.Since(start)).
		Msg("Job completed")
}
