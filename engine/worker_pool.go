package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// JobHandler processes one CopyJob.
type JobHandler func(context.Context, CopyJob) error

// WorkerPool runs copy jobs on a resizable set of workers. Workers exit when
// the job channel is closed and drained, when they are removed, or when the
// pool's context ends.
type WorkerPool struct {
	jobChan JobChannel
	handler JobHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[int]chan struct{}
	nextID  int
	wg      sync.WaitGroup

	active    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	firstErr  error
}

// NewWorkerPool creates a pool with no workers; call SetWorkerCount.
func NewWorkerPool(ctx context.Context, jobChan JobChannel, handler JobHandler) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		jobChan: jobChan,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[int]chan struct{}),
	}
}

// SetWorkerCount scales the pool to count workers. Removed workers finish
// their current job first. The pool never drops below one worker so queued
// jobs always drain.
func (p *WorkerPool) SetWorkerCount(count int) {
	if count < 1 {
		count = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.workers) < count {
		p.addWorker()
	}
	for len(p.workers) > count {
		p.removeWorker()
	}
}

// WorkerCount returns the current target number of workers.
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Active returns the number of jobs being handled right now.
func (p *WorkerPool) Active() int64 { return p.active.Load() }

// Succeeded returns the number of jobs that finished without error.
func (p *WorkerPool) Succeeded() int64 { return p.succeeded.Load() }

// Failed returns the number of jobs whose handler returned an error.
func (p *WorkerPool) Failed() int64 { return p.failed.Load() }

// Err returns the first handler error.
func (p *WorkerPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

func (p *WorkerPool) addWorker() {
	quit := make(chan struct{})
	id := p.nextID
	p.nextID++
	p.workers[id] = quit
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			default:
			}

			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			case job, ok := <-p.jobChan:
				if !ok {
					return
				}
				p.run(job)
			}
		}
	}()
}

func (p *WorkerPool) run(job CopyJob) {
	p.active.Add(1)
	err := p.handler(p.ctx, job)
	p.active.Add(-1)

	if err == nil {
		p.succeeded.Add(1)
		return
	}
	p.failed.Add(1)
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.mu.Unlock()
}

// removeWorker must be called with mu held.
func (p *WorkerPool) removeWorker() {
	for id, quit := range p.workers {
		close(quit)
		delete(p.workers, id)
		return
	}
}

// Wait blocks until every worker has exited. Close the job channel first to
// let workers drain it.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Stop cancels running jobs and waits for workers to exit.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}
