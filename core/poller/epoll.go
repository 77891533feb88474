//go:build linux

package poller

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux implementation, backed by an edge-triggered epoll
// instance.
type epollPoller struct {
	epfd   int
	events [maxEvents]unix.EpollEvent

	mu     sync.Mutex
	tokens map[int32]any
}

// New creates a Poller (Linux).
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		tokens: make(map[int32]any),
	}, nil
}

func (p *epollPoller) Add(fd int, token any) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLOUT |
			unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd: int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}

	p.mu.Lock()
	p.tokens[int32(fd)] = token
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) Forget(fd int, token any) {
	p.mu.Lock()
	if p.tokens[int32(fd)] == token {
		delete(p.tokens, int32(fd))
	}
	p.mu.Unlock()
}

func (p *epollPoller) Poll() int {
	for {
		n, err := unix.EpollWait(p.epfd, p.events[:], pollTimeoutMs)
		if err == nil {
			return n
		}
		if err == unix.EINTR {
			continue
		}
		logrus.Fatalf("poller: epoll_wait: %v", err)
	}
}

func (p *epollPoller) Event(i int) (EventMask, any) {
	ev := p.events[i]

	p.mu.Lock()
	token := p.tokens[ev.Fd]
	p.mu.Unlock()

	if ev.Events&unix.EPOLLERR != 0 {
		return Err, token
	}

	var mask EventMask
	// A hangup makes the descriptor both readable and writable so the
	// next read/write observes EOF or EPIPE and the layer above detects
	// the condition.
	if ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLIN) != 0 {
		mask |= ReadReady
	}
	if ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLOUT) != 0 {
		mask |= WriteReady
	}
	return mask, token
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
