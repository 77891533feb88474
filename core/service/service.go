// Package service binds a reactor, a set of acceptors and the request stats
// into one servable unit with a blocking start and an idempotent,
// thread-safe stop.
package service

import (
	"sync"

	"github.com/searchktools/reactor-server/core/conn"
	"github.com/searchktools/reactor-server/core/reactor"
	"github.com/searchktools/reactor-server/core/stats"
)

// IOService is the lifecycle facade over the serving machinery.
type IOService struct {
	r         *reactor.Reactor
	stats     *stats.RequestStats
	acceptors []*conn.Acceptor

	mu            sync.Mutex
	cond          *sync.Cond
	stopRequested bool
	stopped       bool
}

// New builds a service whose reactor runs numWorkers workers.
func New(numWorkers int) (*IOService, error) {
	r, err := reactor.New(numWorkers)
	if err != nil {
		return nil, err
	}
	s := &IOService{
		r:     r,
		stats: stats.New(numWorkers),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// RegisterAcceptor adds a listening port whose accepted sockets flow into
// cb. All registrations must happen before Start.
func (s *IOService) RegisterAcceptor(port int, cb conn.AcceptCallback) *conn.Acceptor {
	a := conn.NewAcceptor(s.r, port, cb)
	s.acceptors = append(s.acceptors, a)
	return a
}

// Start arms every acceptor and runs the reactor's polling loop on the
// calling goroutine. It returns only after a Stop has completely drained the
// machinery.
func (s *IOService) Start() {
	for _, a := range s.acceptors {
		a.StartAccept()
	}

	s.r.Poll() // blocks here until Stop is called

	// Hold until Stop completed, which can take longer than the polling
	// loop breaking: the worker pool still has to drain and join.
	s.mu.Lock()
	for !s.stopped {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Stop tears the service down: acceptors close, the reactor stops, workers
// are joined. Only the first caller executes the tear-down; concurrent
// callers block until it has finished. Stop is safe from any goroutine,
// including the reactor's own workers.
func (s *IOService) Stop() {
	s.mu.Lock()
	if s.stopRequested {
		for !s.stopped {
			s.cond.Wait()
		}
		s.mu.Unlock()
		return
	}
	s.stopRequested = true
	s.mu.Unlock()

	// Stop accepting new connections.
	for _, a := range s.acceptors {
		a.Close()
	}

	// Break the polling loop in Start, then let the workers run what was
	// already enqueued and join them.
	s.r.Stop()

	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Stopped reports whether a stop was requested (though possibly not yet
// completed).
func (s *IOService) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Reactor exposes the underlying reactor.
func (s *IOService) Reactor() *reactor.Reactor { return s.r }

// Stats exposes the per-worker request counters.
func (s *IOService) Stats() *stats.RequestStats { return s.stats }
