//go:build darwin || freebsd || netbsd || openbsd

package poller

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/macOS implementation. EV_CLEAR gives the same
// edge-triggered semantics epoll provides with EPOLLET.
type kqueuePoller struct {
	kq     int
	events [maxEvents]unix.Kevent_t

	mu     sync.Mutex
	tokens map[uint64]any
}

// New creates a Poller (BSD/macOS).
func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kq:     kq,
		tokens: make(map[uint64]any),
	}, nil
}

func (p *kqueuePoller) Add(fd int, token any) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_CLEAR},
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return err
	}

	p.mu.Lock()
	p.tokens[uint64(fd)] = token
	p.mu.Unlock()
	return nil
}

func (p *kqueuePoller) Forget(fd int, token any) {
	p.mu.Lock()
	if p.tokens[uint64(fd)] == token {
		delete(p.tokens, uint64(fd))
	}
	p.mu.Unlock()
}

func (p *kqueuePoller) Poll() int {
	timeout := unix.Timespec{Nsec: pollTimeoutMs * 1e6}
	for {
		n, err := unix.Kevent(p.kq, nil, p.events[:], &timeout)
		if err == nil {
			return n
		}
		if err == unix.EINTR {
			continue
		}
		logrus.Fatalf("poller: kevent: %v", err)
	}
}

func (p *kqueuePoller) Event(i int) (EventMask, any) {
	ev := p.events[i]

	p.mu.Lock()
	token := p.tokens[ev.Ident]
	p.mu.Unlock()

	if ev.Flags&unix.EV_ERROR != 0 {
		return Err, token
	}

	var mask EventMask
	switch ev.Filter {
	case unix.EVFILT_READ:
		mask |= ReadReady
	case unix.EVFILT_WRITE:
		mask |= WriteReady
	}
	// EOF behaves like a hangup: surface both directions so the next
	// read/write observes the condition.
	if ev.Flags&unix.EV_EOF != 0 {
		mask |= ReadReady | WriteReady
	}
	return mask, token
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
