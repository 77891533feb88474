package reactor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/pools"
)

// Descriptor is the rendezvous between two asynchronous signals for one
// socket: readiness arriving from the poller, and the user asking to read or
// write. Each direction is a tiny state machine over the pair
// (waiting, can):
//
//	waiting=false can=false  idle; the next signal flips one flag
//	waiting=false can=true   readiness arrived, nobody asked yet
//	waiting=true  can=false  someone asked, readiness not arrived
//
// Both flags true is unreachable: whichever signal arrives second clears the
// other flag and schedules the callback on the worker pool.
//
// Descriptors are created and disposed of via the Reactor; disposal is
// deferred to the polling loop's collection pass so a descriptor is never
// freed under a worker still referencing it.
type Descriptor struct {
	r  *Reactor
	fd int

	mu           sync.Mutex
	readCB       pools.Task
	writeCB      pools.Task
	canRead      bool
	canWrite     bool
	waitingRead  bool
	waitingWrite bool

	next *Descriptor // collection list link
}

// Fd returns the underlying file descriptor.
func (d *Descriptor) Fd() int { return d.fd }

// ReadWhenReady schedules the read callback if the socket is already known
// to be readable; otherwise it records the demand so the next readiness edge
// fires the callback.
func (d *Descriptor) ReadWhenReady() {
	var cb pools.Task

	d.mu.Lock()
	if d.canRead {
		d.canRead = false
		cb = d.readCB
	} else {
		d.waitingRead = true
	}
	d.mu.Unlock()

	if cb != nil {
		d.r.pool.AddTask(cb)
	}
}

// WriteWhenReady is ReadWhenReady for the write direction.
func (d *Descriptor) WriteWhenReady() {
	var cb pools.Task

	d.mu.Lock()
	if d.canWrite {
		d.canWrite = false
		cb = d.writeCB
	} else {
		d.waitingWrite = true
	}
	d.mu.Unlock()

	if cb != nil {
		d.r.pool.AddTask(cb)
	}
}

// readIfWaiting is the poller-side dual of ReadWhenReady: schedule the read
// callback if a read was requested, otherwise remember the readiness.
func (d *Descriptor) readIfWaiting() {
	var cb pools.Task

	d.mu.Lock()
	if d.waitingRead {
		d.waitingRead = false
		cb = d.readCB
	} else {
		d.canRead = true
	}
	d.mu.Unlock()

	if cb != nil {
		d.r.pool.AddTask(cb)
	}
}

func (d *Descriptor) writeIfWaiting() {
	var cb pools.Task

	d.mu.Lock()
	if d.waitingWrite {
		d.waitingWrite = false
		cb = d.writeCB
	} else {
		d.canWrite = true
	}
	d.mu.Unlock()

	if cb != nil {
		d.r.pool.AddTask(cb)
	}
}

// SetUpcalls replaces both callbacks. Used by connecting sockets that start
// with only a connect-completion callback and switch to read/write mode once
// the connect resolves.
func (d *Descriptor) SetUpcalls(readCB, writeCB pools.Task) {
	d.mu.Lock()
	d.readCB = readCB
	d.writeCB = writeCB
	d.mu.Unlock()
}

func (d *Descriptor) dispose() {
	d.mu.Lock()
	d.readCB = nil
	d.writeCB = nil
	d.mu.Unlock()
}

func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
