// Package pools provides the worker pool that runs I/O callbacks and timer
// tasks.
//
// The pool keeps a list of idle workers. Under light load a submitted task is
// handed straight into an idle worker's one-slot mailbox, so there is no
// contention on a shared queue and no broadcast wake-up on the dispatch side.
// Only when every worker is busy do tasks accumulate in the dispatch queue,
// which finishing workers drain before going back to the free list.
package pools

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue/v2"
)

// Task is a unit of work. A nil Task is reserved as the internal shutdown
// sentinel and must not be submitted.
type Task func()

// Pool is a fixed-size worker pool with a free-worker fast path.
type Pool struct {
	mu       sync.Mutex
	free     *queue.Queue[*worker] // idle workers
	dispatch *queue.Queue[Task]    // tasks waiting for a worker
	workers  []*worker
	stopping bool
}

type worker struct {
	id   int
	pool *Pool

	// One-slot mailbox.
	mu      sync.Mutex
	cond    *sync.Cond
	hasTask bool
	task    Task

	// Set when Stop was called from this worker; it must exit after its
	// current task instead of returning to the free list.
	exitAfterTask atomic.Bool

	done chan struct{}
}

// New creates a pool with numWorkers workers, all initially idle.
func New(numWorkers int) *Pool {
	p := &Pool{
		free:     queue.New[*worker](),
		dispatch: queue.New[Task](),
	}
	for i := 0; i < numWorkers; i++ {
		w := &worker{id: i, pool: p, done: make(chan struct{})}
		w.cond = sync.NewCond(&w.mu)
		p.workers = append(p.workers, w)
		go w.loop()
		p.queueWorker(w)
	}
	return p
}

// AddTask schedules t to run on some worker. If a worker is idle the task is
// delivered into its mailbox directly; otherwise it is queued.
func (p *Pool) AddTask(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.Length() > 0 {
		p.free.Remove().assign(t)
		return
	}
	p.dispatch.Add(t)
}

// queueWorker returns a worker to the free list, or hands it the next queued
// task right away if there is one.
func (p *Pool) queueWorker(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dispatch.Length() > 0 {
		w.assign(p.dispatch.Remove())
		return
	}
	p.free.Add(w)
}

// Stop shuts the pool down: one shutdown sentinel is issued per worker, all
// workers are joined, and whatever is left in the dispatch queue afterwards is
// dropped without execution. Tasks already running, and tasks queued ahead of
// the sentinels, run to completion first.
//
// Stop may be called from one of the pool's own workers. In that case the
// calling worker is not joined; it exits right after the task that invoked
// Stop returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	p.mu.Unlock()

	for range p.workers {
		p.addSentinel()
	}

	self := currentWorker()
	for _, w := range p.workers {
		if w == self {
			// This very goroutine is a pool worker executing Stop; it
			// can't join itself. Make it exit after the current task.
			w.exitAfterTask.Store(true)
			continue
		}
		<-w.done
	}

	// Drop anything still queued (at least the sentinel the calling
	// worker never consumed, when stopping from inside the pool).
	p.mu.Lock()
	for p.dispatch.Length() > 0 {
		p.dispatch.Remove()
	}
	p.mu.Unlock()
}

func (p *Pool) addSentinel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.Length() > 0 {
		p.free.Remove().assign(nil)
		return
	}
	p.dispatch.Add(nil)
}

// Count returns the number of tasks waiting in the dispatch queue.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatch.Length()
}

// NumWorkers returns the pool size.
func (p *Pool) NumWorkers() int { return len(p.workers) }

func (w *worker) assign(t Task) {
	w.mu.Lock()
	w.task = t
	w.hasTask = true
	w.cond.Signal()
	w.mu.Unlock()
}

func (w *worker) loop() {
	registerWorker(w)
	defer unregisterWorker()

	for {
		// Wait until a task lands in the mailbox. Because it was
		// assigned to this worker, it has already left the free list.
		w.mu.Lock()
		for !w.hasTask {
			w.cond.Wait()
		}
		w.hasTask = false
		t := w.task
		w.mu.Unlock()

		// A nil task is a request to stop this worker.
		if t == nil {
			close(w.done)
			return
		}

		t()

		// If this worker executed the pool tear-down itself, Stop
		// flagged it instead of joining it.
		if w.exitAfterTask.Load() {
			close(w.done)
			return
		}

		w.pool.queueWorker(w)
	}
}
