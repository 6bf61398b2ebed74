package pipelinemonitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrRefresherRunning is returned by Start when the refresher is active.
	ErrRefresherRunning = errors.New("refresher already running")
	// ErrInvalidInterval is returned by Start for a non-positive interval.
	ErrInvalidInterval = errors.New("refresh interval must be positive")
)

// Refresher runs a task immediately and then every interval until it is
// stopped. Runs never overlap. Stop cancels the run in flight and waits for
// it, so no work is left pending once it returns.
type Refresher struct {
	interval time.Duration
	task     func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runs   atomic.Int64
}

// NewRefresher creates a stopped refresher.
func NewRefresher(interval time.Duration, task func(ctx context.Context)) *Refresher {
	return &Refresher{interval: interval, task: task}
}

// Start launches the loop. It ends when ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, r.interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrRefresherRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.loop(runCtx, done)
	return nil
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.run(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Refresher) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.runs.Add(1)
	r.task(ctx)
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped
// refresher is a no-op.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done is closed when the current loop exits. It is nil before Start.
func (r *Refresher) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Runs returns how many times the task has started.
func (r *Refresher) Runs() int64 {
	return r.runs.Load()
}
