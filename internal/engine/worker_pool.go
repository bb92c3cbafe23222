package engine

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue. The
// queue channel is never closed, so producers may race Drain without
// panicking; shutdown is signalled through done instead.
type workerPool[T any] struct {
	queue   chan T
	done    chan struct{}
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
	once    sync.Once
}

// newWorkerPool creates and starts a pool with n goroutines and queue depth d.
func newWorkerPool[T any](ctx context.Context, n, d int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		queue:   make(chan T, d),
		done:    make(chan struct{}),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t := <-p.queue:
			p.process(ctx, t)
		case <-ctx.Done():
			return
		case <-p.done:
			// Flush whatever was accepted before shutdown.
			for {
				select {
				case t := <-p.queue:
					p.process(ctx, t)
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues a job without blocking (returns false if full or draining).
func (p *workerPool[T]) Submit(t T) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// SubmitWait blocks until the queue accepts t, ctx is cancelled, or the pool
// starts draining. This is the back-pressure path: slow detection throttles
// the producer instead of dropping its input.
func (p *workerPool[T]) SubmitWait(ctx context.Context, t T) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- t:
		return true
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	}
}

// Drain stops the pool and waits for all workers to finish. Accepted jobs
// are processed before the workers exit; safe to call with producers still
// running, and more than once.
func (p *workerPool[T]) Drain() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

// QueueLen returns how many jobs are currently queued.
func (p *workerPool[T]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool[T]) QueueCap() int {
	return cap(p.queue)
}
