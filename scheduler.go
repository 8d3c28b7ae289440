package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// recentSearchRefreshCount is how many of the most recent searches get
// their weather re-primed on each cycle.
const recentSearchRefreshCount = 5

// Scheduler periodically re-primes the weather cache for the places the
// user searched most recently, so returning to a recent place shows fresh
// conditions without an upstream round trip.
type Scheduler struct {
	cfg         *apiConfig
	refreshChan <-chan time.Time
	stop        chan struct{}
	ticker      *time.Ticker
	refreshJobs func()
}

func NewScheduler(cfg *apiConfig, interval time.Duration) *Scheduler {
	ticker := time.NewTicker(interval)
	s := &Scheduler{
		cfg:         cfg,
		refreshChan: ticker.C,
		stop:        make(chan struct{}),
		ticker:      ticker,
	}
	s.refreshJobs = s.runRefreshJobs
	return s
}

func (s *Scheduler) Start() {
	go func() {
		for {
			select {
			case <-s.refreshChan:
				log.Println("Scheduler: Running weather refresh jobs...")
				s.refreshJobs()
			case <-s.stop:
				log.Println("Scheduler: Stopping...")
				s.ticker.Stop()
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	// TODO: Implement a more graceful shutdown.
	// The current implementation signals the scheduler to stop, but doesn't
	// wait for the currently running jobs to complete. A sync.WaitGroup could
	// be added to the Scheduler struct and used in runRefreshJobs to ensure
	// that the Stop() method blocks until all active jobs are finished.
	close(s.stop)
}

func (s *Scheduler) runRefreshJobs() {
	ctx := context.Background()
	recent := s.cfg.store.RecentSearches(recentSearchRefreshCount)
	if len(recent) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, entry := range recent {
		wg.Add(1)
		go func(e SearchHistoryEntry) {
			defer wg.Done()
			s.cfg.refreshWeather(ctx, e.Point)
			log.Printf("Scheduler: Refreshed weather for %q", e.Query)
		}(entry)
	}
	wg.Wait()
	log.Println("Scheduler: All jobs for this cycle completed.")
}
