package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is one unit of dispatch work.
type Task func()

// Pool runs notification dispatch on a bounded set of workers with a bounded
// queue. A full queue drops the task: under overload, losing a notification
// beats unbounded goroutine growth.
type Pool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
	dropped int64
	logger  zerolog.Logger
}

// NewPool builds a pool of workers with a queue of queueSize tasks.
func NewPool(workers, queueSize int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. They drain the queue until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			if task == nil {
				continue
			}
			p.run(task)
		}
	}
}

// run executes one task, containing any panic so a misbehaving sink cannot
// take the worker down.
func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("notification task panicked")
		}
	}()
	task()
}

// Submit enqueues task, dropping it when the queue is full.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		atomic.AddInt64(&p.dropped, 1)
		return false
	}
}

// Dropped returns the number of tasks dropped by a full queue.
func (p *Pool) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

// Wait blocks until all workers have exited after context cancellation.
func (p *Pool) Wait() {
	p.wg.Wait()
}
