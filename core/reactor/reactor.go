// Package reactor multiplexes non-blocking sockets over a single polling
// goroutine and dispatches their read/write callbacks onto a worker pool.
//
// A socket is registered by creating a Descriptor with the callbacks to issue
// when the socket can be read or written without blocking. The reactor's
// polling loop scans for readiness and, when a socket is both ready and
// wanted, schedules the matching callback on the workers.
//
// SOCKETS HANDED TO THIS PACKAGE MUST BE NON-BLOCKING, and because readiness
// is edge-triggered, every callback must drain the socket until EAGAIN (or
// explicitly re-arm through ReadWhenReady/WriteWhenReady) before returning.
package reactor

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/reactor-server/core/poller"
	"github.com/searchktools/reactor-server/core/pools"
)

// Reactor owns the poller, the worker pool, the timer queue and the list of
// descriptors awaiting disposal.
type Reactor struct {
	poller poller.Poller
	pool   *pools.Pool

	// Stop handshake between Stop and the polling goroutine.
	mu          sync.Mutex
	stopped     bool
	polling     bool
	pollingDone *sync.Cond

	// Descriptors that were deleted add themselves here; the polling
	// loop disposes of them once per iteration, after event dispatch, so
	// a descriptor is never freed while a worker still holds it.
	gcMu   sync.Mutex
	gcHead *Descriptor

	// Pending timers, drained by the polling loop.
	timerMu sync.Mutex
	timers  timerQueue
	seq     uint64
}

// New builds a Reactor backed by a pool of numWorkers workers.
func New(numWorkers int) (*Reactor, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		poller: p,
		pool:   pools.New(numWorkers),
	}
	r.pollingDone = sync.NewCond(&r.mu)
	return r, nil
}

// Poll blocks the calling goroutine and scans registered descriptors for
// readiness, issuing their callbacks on the worker pool. It returns only
// after Stop is issued.
func (r *Reactor) Poll() {
	r.mu.Lock()
	r.polling = true
	r.mu.Unlock()

	r.pollBody()
}

// Stop breaks the polling loop, stops the worker pool and disposes of any
// remaining descriptors. It is idempotent and may be called from any
// goroutine, including a pool worker. When the first call returns, no
// callback previously handed to the pool is still executing, other than the
// one making the call. A repeat call returns at once, even while the first
// call is still tearing down.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	// Signal the intention to stop and wait for the polling loop to pick
	// it up and break. Otherwise the loop would keep feeding callbacks to
	// the workers while we are tearing them down.
	r.stopped = true
	for r.polling {
		r.pollingDone.Wait()
	}
	r.mu.Unlock()

	r.pool.Stop()

	// No worker is running anymore; collect what is left.
	r.collectDescriptors()
}

func (r *Reactor) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Reactor) pollBody() {
	for !r.isStopped() {
		n := r.poller.Poll()

		r.runDueTimers()

		for i := 0; i < n; i++ {
			mask, token := r.poller.Event(i)
			d, ok := token.(*Descriptor)
			if !ok {
				continue
			}
			if mask&(poller.Err|poller.ReadReady) != 0 {
				d.readIfWaiting()
			}
			if mask&(poller.Err|poller.WriteReady) != 0 {
				d.writeIfWaiting()
			}
		}

		r.collectDescriptors()
	}

	r.mu.Lock()
	r.polling = false
	r.pollingDone.Broadcast()
	r.mu.Unlock()
}

// NewDescriptor registers fd with the poller and returns its Descriptor.
// readCB and writeCB are issued, on the worker pool, whenever fd is both
// ready and wanted for the respective direction. The fd is switched to
// non-blocking mode.
func (r *Reactor) NewDescriptor(fd int, readCB, writeCB pools.Task) *Descriptor {
	if err := setNonblock(fd); err != nil {
		logrus.Fatalf("reactor: can't set fd %d non-blocking: %v", fd, err)
	}
	d := &Descriptor{
		r:       r,
		fd:      fd,
		readCB:  readCB,
		writeCB: writeCB,
	}
	if err := r.poller.Add(fd, d); err != nil {
		logrus.Fatalf("reactor: can't register fd %d: %v", fd, err)
	}
	return d
}

// DelDescriptor marks d ready to be collected and returns. The actual
// disposal happens on the polling goroutine, after it finished dispatching
// the current batch of events.
func (r *Reactor) DelDescriptor(d *Descriptor) {
	if d == nil {
		return
	}
	r.gcMu.Lock()
	d.next = r.gcHead
	r.gcHead = d
	r.gcMu.Unlock()
}

func (r *Reactor) collectDescriptors() {
	r.gcMu.Lock()
	d := r.gcHead
	r.gcHead = nil
	r.gcMu.Unlock()

	for d != nil {
		hold := d
		d = d.next
		hold.dispose()
		// Identity-scoped: the fd may already have been reused and
		// re-registered by a new descriptor.
		r.poller.Forget(hold.fd, hold)
	}
}

// AddTimer schedules task to run on a pool worker at least delay from now.
// Tasks sharing a deadline run in insertion order.
func (r *Reactor) AddTimer(delay time.Duration, task pools.Task) {
	r.timerMu.Lock()
	r.seq++
	r.timers.push(&timerEntry{at: time.Now().Add(delay), seq: r.seq, task: task})
	r.timerMu.Unlock()
}

// AddTask schedules task to run on a pool worker as soon as possible.
func (r *Reactor) AddTask(task pools.Task) {
	r.pool.AddTask(task)
}

func (r *Reactor) runDueTimers() {
	now := time.Now()

	// AddTask is called with timerMu held. That is safe because AddTask
	// never blocks (it delivers into a mailbox or enqueues) and nothing
	// on the pool side ever takes timerMu.
	r.timerMu.Lock()
	for r.timers.Len() > 0 && !r.timers.peek().at.After(now) {
		r.pool.AddTask(r.timers.pop().task)
	}
	r.timerMu.Unlock()
}

// Pool exposes the reactor's worker pool.
func (r *Reactor) Pool() *pools.Pool { return r.pool }
