// Package scheduler runs the periodic housekeeping of remote orders.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Jobs is the work the scheduler triggers. *service.Service satisfies it.
type Jobs interface {
	RefreshPendingGauge(ctx context.Context) error
	ExpireStaleRemoteOrders(ctx context.Context, olderThan time.Duration) (int, error)
}

type Config struct {
	Interval time.Duration
	// PendingTTL of zero disables expiry of pending remote orders.
	PendingTTL time.Duration
	JobTimeout time.Duration
}

type Scheduler struct {
	jobs Jobs
	cfg  Config
	cron *gocron.Scheduler
}

func New(jobs Jobs, cfg Config) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	s := &Scheduler{jobs: jobs, cfg: cfg, cron: cron}

	if _, err := cron.Every(cfg.Interval).Do(s.withTimeout(s.RefreshPending)); err != nil {
		return nil, fmt.Errorf("schedule pending gauge: %w", err)
	}
	if cfg.PendingTTL > 0 {
		if _, err := cron.Every(cfg.Interval).Do(s.withTimeout(s.ExpirePending)); err != nil {
			return nil, fmt.Errorf("schedule order expiry: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
	log.Printf("[scheduler] started interval=%s pending_ttl=%s jobs=%d", s.cfg.Interval, s.cfg.PendingTTL, len(s.cron.Jobs()))
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RefreshPending updates the pending remote orders gauge.
func (s *Scheduler) RefreshPending(ctx context.Context) {
	if err := s.jobs.RefreshPendingGauge(ctx); err != nil {
		log.Printf("[scheduler] WARN: refresh pending gauge failed: %v", err)
	}
}

// ExpirePending cancels pending orders older than the configured TTL.
func (s *Scheduler) ExpirePending(ctx context.Context) {
	if s.cfg.PendingTTL <= 0 {
		return
	}
	n, err := s.jobs.ExpireStaleRemoteOrders(ctx, s.cfg.PendingTTL)
	if err != nil {
		log.Printf("[scheduler] WARN: expire pending remote orders failed after %d: %v", n, err)
		return
	}
	if n > 0 {
		log.Printf("[scheduler] expired %d pending remote orders older than %s", n, s.cfg.PendingTTL)
	}
}

func (s *Scheduler) withTimeout(job func(ctx context.Context)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		job(ctx)
	}
}
