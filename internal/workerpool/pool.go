// Package workerpool runs background jobs with a fixed degree of parallelism.
//
// Spawn never blocks the caller: each job parks in its own goroutine until
// one of the pool's slots frees up. There is no queue limit, which suits the
// tens of concurrent asset loads this pool is sized for.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("worker pool closed")

// Job receives the pool context, which is cancelled on Close.
type Job func(ctx context.Context)

type Pool struct {
	sem    *semaphore.Weighted
	size   int
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	log    *zap.Logger
}

// New creates a pool running at most size jobs at once. size <= 0 selects
// runtime.NumCPU().
func New(size int, log *zap.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

func (p *Pool) Size() int { return p.size }

// Spawn schedules job and returns immediately.
func (p *Pool) Spawn(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return // pool closed before a slot freed up
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("worker job panicked", zap.String("panic", fmt.Sprint(r)))
			}
		}()
		job(p.ctx)
	}()
	return nil
}

// Close cancels the pool context and waits for running jobs to return.
// Jobs still waiting for a slot are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
