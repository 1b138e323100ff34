package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// TaskRunner runs work that must not delay or fail the caller.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context))
}

type AsyncRunner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncRunner(timeout time.Duration) *AsyncRunner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AsyncRunner{timeout: timeout}
}

// Go detaches fn from the request: it gets its own context bounded by the
// runner timeout. Panics are logged.
func (r *AsyncRunner) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[tasks] ERROR: task %s panicked: %v", name, rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every started task returned.
func (r *AsyncRunner) Wait() {
	r.wg.Wait()
}

// InlineRunner runs tasks synchronously.
type InlineRunner struct{}

func (InlineRunner) Go(_ string, fn func(ctx context.Context)) {
	fn(context.Background())
}
