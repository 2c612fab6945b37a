/*
The stopper package is the shared teardown worker pool. A layer's
Disconnected event is delivered on that layer's own worker goroutine; if
the shutdown path called Stop from there, the worker would be waiting
for itself to exit. Instead the connection detaches its layer handles
and hands them to this pool, which is the only place allowed to block on
layer teardown.

The pool is process-wide infrastructure: it starts lazily on first use
and lives for the remainder of the process.
*/
package stopper

import (
	"sync"
)

const defaultWorkers = 4

type Pool struct {
	tasks chan func()
}

func NewPool(workers int) *Pool {
	p := &Pool{
		tasks: make(chan func(), 128),
	}

	for i := 0; i < workers; i++ {
		go p.work()
	}

	return p
}

func (p *Pool) work() {
	for task := range p.tasks {
		task()
	}
}

// Enqueue schedules a teardown task. It never blocks the caller: if all
// workers are busy and the backlog is full, the task runs on a fresh
// goroutine instead.
func (p *Pool) Enqueue(task func()) {
	select {
	case p.tasks <- task:
	default:
		go task()
	}
}

var (
	defaultPool *Pool
	poolOnce    sync.Once
)

// Default returns the process-wide pool.
func Default() *Pool {
	poolOnce.Do(func() {
		defaultPool = NewPool(defaultWorkers)
	})
	return defaultPool
}
