package conn

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/reactor"
)

// AcceptCallback receives each accepted socket. A negative fd signals an
// accept failure other than the transparently retried ones.
type AcceptCallback func(fd int)

// Acceptor owns one listening socket registered with the reactor. Its read
// callback loops on accept until the socket would block, delivering every
// accepted fd to the callback.
type Acceptor struct {
	r        *reactor.Reactor
	listenFD int
	desc     *reactor.Descriptor
	cb       AcceptCallback
}

// NewAcceptor opens a listening socket on port and registers it. A port of
// zero asks the kernel for an ephemeral port, which Port reveals. Listener
// setup failures are fatal: a server with no listener has nothing to do.
func NewAcceptor(r *reactor.Reactor, port int, cb AcceptCallback) *Acceptor {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		logrus.Fatalf("acceptor: socket failed: %v", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		logrus.Fatalf("acceptor: setsockopt failed: %v", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		logrus.Fatalf("acceptor: bind to port %d failed: %v", port, err)
	}

	if err := unix.Listen(fd, 20); err != nil {
		logrus.Fatalf("acceptor: listen failed: %v", err)
	}

	a := &Acceptor{r: r, listenFD: fd, cb: cb}
	a.desc = r.NewDescriptor(fd, a.doAccept, a.noOp)
	return a
}

// StartAccept arms the acceptor; from here on accepted sockets flow into the
// callback.
func (a *Acceptor) StartAccept() {
	a.desc.ReadWhenReady()
}

// Port returns the port the acceptor is bound to.
func (a *Acceptor) Port() int {
	sa, err := unix.Getsockname(a.listenFD)
	if err != nil {
		return 0
	}
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return sa4.Port
	}
	return 0
}

// Close stops accepting new connections. The descriptor is left for the
// reactor to collect, since workers may still hold callbacks referencing it.
func (a *Acceptor) Close() {
	closeRetry(a.listenFD)
	if a.desc != nil {
		a.r.DelDescriptor(a.desc)
	}
	a.desc = nil
}

func (a *Acceptor) doAccept() {
	for {
		fd, _, err := acceptRetry(a.listenFD)

		if err == unix.EAGAIN {
			a.desc.ReadWhenReady()
			return
		}
		if err != nil {
			// Surface the failure; -1 tells the callback something
			// went wrong beyond a retryable blip.
			if a.cb != nil {
				a.cb(-1)
			}
			return
		}

		// Same socket options the serving path wants on every peer.
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		if a.cb != nil {
			a.cb(fd)
		}
	}
}

func (a *Acceptor) noOp() {
	// The write upcall of a listening socket has nothing to do.
}

func acceptRetry(fd int) (int, unix.Sockaddr, error) {
	for {
		nfd, sa, err := unix.Accept(fd)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		return nfd, sa, err
	}
}
