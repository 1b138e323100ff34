package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeJobs struct {
	mu        sync.Mutex
	refreshes int
	expiries  []time.Duration
	expireErr error
}

func (f *fakeJobs) RefreshPendingGauge(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeJobs) ExpireStaleRemoteOrders(_ context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiries = append(f.expiries, olderThan)
	return 1, f.expireErr
}

func TestNewRegistersExpiryOnlyWithTTL(t *testing.T) {
	s, err := New(&fakeJobs{}, Config{Interval: time.Minute})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := len(s.cron.Jobs()); got != 1 {
		t.Fatalf("expected 1 job without ttl, got %d", got)
	}

	s, err = New(&fakeJobs{}, Config{Interval: time.Minute, PendingTTL: time.Hour})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := len(s.cron.Jobs()); got != 2 {
		t.Fatalf("expected 2 jobs with ttl, got %d", got)
	}
}

func TestJobsCallThrough(t *testing.T) {
	jobs := &fakeJobs{expireErr: errors.New("db down")}
	s, err := New(jobs, Config{PendingTTL: 30 * time.Minute})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	s.RefreshPending(context.Background())
	s.ExpirePending(context.Background())
	if jobs.refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", jobs.refreshes)
	}
	if len(jobs.expiries) != 1 || jobs.expiries[0] != 30*time.Minute {
		t.Fatalf("expected expiry with ttl, got %v", jobs.expiries)
	}

	s.cfg.PendingTTL = 0
	s.ExpirePending(context.Background())
	if len(jobs.expiries) != 1 {
		t.Fatalf("expiry must be skipped when disabled")
	}
}

func TestStartRunsJobsImmediately(t *testing.T) {
	jobs := &fakeJobs{}
	s, err := New(jobs, Config{Interval: time.Hour})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		jobs.mu.Lock()
		n := jobs.refreshes
		jobs.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the gauge job to run on start")
}
