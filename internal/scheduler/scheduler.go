package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/aqhub/airdata-aggregation/internal/archive"
)

// Scheduler periodically runs the incremental archive cycle. It is owned by
// the composition root and started/stopped explicitly; archive cycles run in
// their own concurrency domain, independent of request handling.
type Scheduler struct {
	scheduler *gocron.Scheduler
	archiver  *archive.Archiver
	interval  time.Duration
}

// New creates a new Scheduler.
func New(archiver *archive.Archiver, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// Per-sensor locks already guard the archive files; singleton mode
	// keeps slow ticks from stacking up behind each other.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		archiver:  archiver,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.archiver == nil {
		log.Println("scheduler: no archiver configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	_, err := s.scheduler.Every(int(interval.Seconds())).Seconds().Do(func() {
		log.Println("scheduler: running archive cycle")

		// A cycle gets at most one interval before the next tick.
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		s.archiver.RunCycle(ctx)
		log.Println("scheduler: completed archive cycle")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
