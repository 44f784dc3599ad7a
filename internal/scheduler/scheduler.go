// Package scheduler runs the bot's periodic maintenance jobs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often stale sessions are looked for.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper drops sessions that have not been touched for maxAge.
type Sweeper interface {
	Sweep(maxAge time.Duration) int
}

// Scheduler owns the gocron scheduler and the jobs registered on it.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sessions  Sweeper
	ttl       time.Duration
	interval  time.Duration
}

// New creates a scheduler that sweeps sessions idle for longer than ttl.
func New(sessions Sweeper, ttl, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sessions:  sessions,
		ttl:       ttl,
		interval:  interval,
	}
}

// Start registers the jobs and runs them in the background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).SingletonMode().Tag("session-sweep").Do(s.sweepSessions); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	s.scheduler.StartAsync()
	log.Info().Dur("interval", s.interval).Dur("ttl", s.ttl).Msg("[Scheduler] Started")
	return nil
}

// Stop terminates all scheduled jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	log.Info().Msg("[Scheduler] Stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return s.scheduler.Len()
}

func (s *Scheduler) sweepSessions() {
	if n := s.sessions.Sweep(s.ttl); n > 0 {
		log.Info().Int("removed", n).Msg("[Scheduler] Swept stale sessions")
	}
}
