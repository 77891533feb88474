// Package poller wraps the host OS's edge-triggered readiness primitive
// (epoll on Linux, kqueue on BSD/macOS).
//
// Descriptors are registered once, for read, write, error and hangup edges,
// together with an opaque token that comes back attached to every event.
// Because notification is edge-triggered, consumers must drain the socket
// until EAGAIN before the next edge will fire.
package poller

// EventMask is an OR of the readiness conditions reported for a descriptor.
type EventMask int

const (
	// ReadReady means a read can be issued without blocking.
	ReadReady EventMask = 1 << iota
	// WriteReady means a write can be issued without blocking.
	WriteReady
	// Err means the descriptor is in an error state; the next read or
	// write will surface the condition.
	Err
)

// Poller is the I/O multiplexing interface.
//
// Poll blocks for up to ~100ms and returns the number of descriptors with
// pending events; Event fetches the i-th of them. Signal interruptions are
// retried transparently; any other polling failure is fatal, as the event
// loop cannot usefully continue without its readiness source.
type Poller interface {
	// Add registers fd for read+write+error+hangup edges and associates
	// token with it. The token is returned verbatim by Event.
	Add(fd int, token any) error

	// Forget drops the token associated with fd, but only if it still is
	// token: a closed fd is immediately reusable, so by the time a
	// deferred Forget runs the fd may already carry a fresh registration
	// that must not be clobbered. The kernel removes a closed fd from
	// the interest set on its own.
	Forget(fd int, token any)

	// Poll waits for events and returns how many descriptors are ready.
	Poll() int

	// Event returns the event mask and token of the i-th ready
	// descriptor from the last Poll.
	Event(i int) (EventMask, any)

	// Close releases the backing kernel object.
	Close() error
}

const (
	// maxEvents bounds how many events one Poll round can report.
	maxEvents = 1024

	// pollTimeoutMs keeps Poll from blocking indefinitely so the event
	// loop can notice a stop request.
	pollTimeoutMs = 100
)
