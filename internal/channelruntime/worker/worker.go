// Package worker runs per-conversation job queues: jobs for one
// conversation key are handled in arrival order by a dedicated goroutine,
// while a shared semaphore bounds how many conversations run at once.
package worker

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("conversation queue is full")

type Pool[J any] struct {
	ctx       context.Context
	sem       chan struct{}
	queueSize int
	handle    func(context.Context, J)

	mu      sync.Mutex
	workers map[string]chan J
}

func NewPool[J any](ctx context.Context, maxConcurrency, queueSize int, handle func(context.Context, J)) *Pool[J] {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if queueSize < 1 {
		queueSize = 16
	}
	return &Pool[J]{
		ctx:       ctx,
		sem:       make(chan struct{}, maxConcurrency),
		queueSize: queueSize,
		handle:    handle,
		workers:   make(map[string]chan J),
	}
}

// Enqueue queues a job for its conversation, starting the conversation's
// worker on first use. It never blocks: a full queue returns ErrQueueFull
// so the adapter can surface backpressure instead of stalling the poll
// loop.
func (p *Pool[J]) Enqueue(key string, job J) error {
	p.mu.Lock()
	ch, ok := p.workers[key]
	if !ok {
		ch = make(chan J, p.queueSize)
		p.workers[key] = ch
		go p.run(ch)
	}
	p.mu.Unlock()

	select {
	case ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool[J]) run(jobs <-chan J) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-jobs:
			select {
			case p.sem <- struct{}{}:
			case <-p.ctx.Done():
				return
			}
			func() {
				defer func() { <-p.sem }()
				p.handle(p.ctx, job)
			}()
		}
	}
}
