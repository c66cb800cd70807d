// Package pool runs work on a fixed set of workers and hands back futures.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when work is submitted to a closed pool.
var ErrClosed = errors.New("pool closed")

type job struct {
	name string
	run  func(ctx context.Context)
}

// Pool is a bounded worker pool. At most Workers jobs run at once and at
// most Workers+QueueSize jobs are admitted; Submit blocks beyond that.
type Pool struct {
	jobs   chan job
	admit  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a pool with the given number of workers and queue slots.
// workers <= 0 selects runtime.NumCPU().
func New(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan job, workers+queueSize),
		admit:  semaphore.NewWeighted(int64(workers + queueSize)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "pool"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.run(p.ctx)
		p.admit.Release(1)
	}
}

// enqueue admits j, blocking while the pool is full.
func (p *Pool) enqueue(ctx context.Context, j job) error {
	if err := p.admit.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.admit.Release(1)
		return ErrClosed
	}
	// Admission guarantees a free channel slot.
	p.jobs <- j
	return nil
}

// Close stops accepting work and waits for admitted jobs to finish. If ctx
// expires first, running jobs see their context cancelled and Close returns
// ctx.Err() once they have returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.logger.Warn("pool shutdown deadline reached, cancelling running jobs")
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Future is the pending result of work submitted with Submit.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit runs fn on p and returns a future for its result. name identifies
// the work in logs. A panic in fn is returned as the future's error.
func Submit[T any](ctx context.Context, p *Pool, name string, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	j := job{name: name, run: func(ctx context.Context) {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("job panicked", "job", name, "panic", r)
				f.err = fmt.Errorf("job %s panicked: %v", name, r)
			}
		}()
		f.val, f.err = fn(ctx)
	}}
	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}
	return f, nil
}
