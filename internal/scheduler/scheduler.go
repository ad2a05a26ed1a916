package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
)

// Querier runs one aggregation query. Implemented by the orchestrator.
type Querier interface {
	Query(ctx context.Context, req climate.QueryRequest) (*climate.Result, error)
}

// Scheduler periodically re-runs recent-window queries for configured
// locations so their cache entries stay warm. Warm queries cover the
// last week through the forecast horizon, the range interactive users
// ask for most.
type Scheduler struct {
	scheduler *gocron.Scheduler
	querier   Querier
	locations []climate.Location
	interval  time.Duration
}

// New creates a new Scheduler.
func New(locations []climate.Location, interval time.Duration, querier Querier) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		querier:   querier,
		locations: locations,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 || s.interval <= 0 {
		log.Println("scheduler: no warm locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		log.Println("scheduler: running cache warm job")

		today := climate.DateOf(time.Now())
		dr := climate.DateRange{
			Start: today.AddDate(0, 0, -7),
			End:   today.AddDate(0, 0, 5),
		}

		var wg sync.WaitGroup
		for _, loc := range s.locations {
			loc := loc
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if _, err := s.querier.Query(ctx, climate.QueryRequest{
					Location: loc,
					Range:    dr,
				}); err != nil {
					log.Printf("scheduler: warm query failed for %s: %v", loc.Key(), err)
				}
			}()
		}
		wg.Wait()
		log.Println("scheduler: completed cache warm job")
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
