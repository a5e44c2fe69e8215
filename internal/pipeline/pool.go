package pipeline

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("pipeline queue closed")

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	ran  bool
	done chan struct{}
}

// Pool runs jobs on a fixed set of workers fed by a bounded queue.
type Pool struct {
	queue chan *job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{queue: make(chan *job, queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		if j.ctx.Err() == nil {
			j.fn(j.ctx)
			j.ran = true
		}
		close(j.done)
	}
}

// Submit queues fn and blocks until it has run or ctx ends. A job whose
// ctx ended while queued is skipped.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan struct{})}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case p.queue <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-j.done:
		if !j.ran {
			return ctx.Err()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
