// Package conn builds reference-counted, protocol-agnostic sessions on top
// of the reactor.
//
// A Connection carries two streaming buffers, one for input and one for
// output. The reading side keeps draining the socket for as long as it
// doesn't block, pushing data into the input buffer and issuing the
// handler's ReadDone after each successful read. The writing side flushes
// whatever is in the output buffer to the socket.
//
// Connections are reference counted; never tear one down directly. As long
// as a protocol keeps reading or writing, its connection stays alive.
package conn

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/buffer"
	"github.com/searchktools/reactor-server/core/reactor"
)

// Handler is the protocol side of a Connection.
type Handler interface {
	// ReadDone is called after each successful socket read, with the new
	// bytes appended to the input buffer. Returning false closes the
	// reading path (and usually the connection). A successful ReadDone
	// may or may not consume the buffered data.
	ReadDone() bool

	// ConnDone is called when a connect initiated with StartConnect
	// completes, successfully or not. The implementation must check OK.
	ConnDone()
}

// Connection is a ref-counted session around one non-blocking socket.
//
// There is at most one goroutine on the reading side at any time, so the
// input buffer needs no lock. The output buffer is shared between whoever
// produces a response and the flushing loop, and every access to it (and to
// the writing flag) must hold WriteMu.
type Connection struct {
	// In is the input buffer. Only the reading side touches it.
	In *buffer.Buffer

	// WriteMu protects Out and the writing flag.
	WriteMu sync.Mutex
	// Out is the output buffer. Guarded by WriteMu.
	Out     *buffer.Buffer
	writing bool // a flush is pending or ongoing. Guarded by WriteMu.

	id      string
	fd      int
	closed  bool
	r       *reactor.Reactor
	desc    *reactor.Descriptor
	handler Handler

	inError   bool
	errString string

	refs atomic.Int32
}

// New builds the server side of a connection around an accepted socket.
// The reference count starts at zero: the caller is expected to issue
// StartRead right away, which acquires the first reference.
func New(r *reactor.Reactor, fd int, h Handler) *Connection {
	c := &Connection{
		In:      buffer.New(),
		Out:     buffer.New(),
		id:      uuid.NewString(),
		fd:      fd,
		r:       r,
		handler: h,
	}
	c.desc = r.NewDescriptor(fd, c.doRead, c.doWrite)
	return c
}

// NewClient builds a connection prepared to connect out. The descriptor is
// created during StartConnect, once there is a socket to watch.
func NewClient(r *reactor.Reactor, h Handler) *Connection {
	return &Connection{
		In:      buffer.New(),
		Out:     buffer.New(),
		id:      uuid.NewString(),
		fd:      -1,
		closed:  true,
		r:       r,
		handler: h,
	}
}

// OK reports whether the connection has recorded no error. Only the connect
// path (StartConnect) records errors; read and write failures are logged
// and end their path without changing OK.
func (c *Connection) OK() bool { return !c.inError }

// Closed reports whether the underlying socket was closed.
func (c *Connection) Closed() bool { return c.closed }

// ErrorString describes the last error, if any.
func (c *Connection) ErrorString() string { return c.errString }

// ID returns the connection's log correlation id.
func (c *Connection) ID() string { return c.id }

// Acquire takes one reference. Holders of a freshly constructed connection
// need to call it unless they issue a Start* right away, which is usually
// the case.
func (c *Connection) Acquire() { c.refs.Add(1) }

// Release drops one reference. When the count reaches zero the socket is
// closed and the descriptor is handed to the reactor for collection.
func (c *Connection) Release() {
	n := c.refs.Add(-1)
	if n == 0 {
		c.destroy()
		return
	}
	if n < 0 {
		logrus.Errorf("conn %s: reference count underflow on fd %d", c.id, c.fd)
	}
}

func (c *Connection) destroy() {
	if c.fd >= 0 {
		closeRetry(c.fd)
		c.closed = true
	}
	if c.desc != nil {
		c.r.DelDescriptor(c.desc)
	}
}

// StartConnect begins connecting to host:port. When the connect completes —
// successfully or not — the handler's ConnDone is issued, possibly from
// within this call if the outcome is known immediately.
//
// The reference taken here lasts until after ConnDone returns; if ConnDone
// does nothing to keep the connection open, the connection is torn down
// right after it. StartConnect can only be issued once per Connection.
func (c *Connection) StartConnect(host string, port int) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		c.errString = "socket failed: " + err.Error()
		c.inError = true
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		c.errString = "socket failed: " + err.Error()
		c.inError = true
		return
	}
	c.fd = fd

	ip := net.ParseIP(host)
	if ip != nil {
		ip = ip.To4()
	}
	if ip == nil {
		if addrs, lerr := net.LookupIP(host); lerr == nil {
			for _, a := range addrs {
				if v4 := a.To4(); v4 != nil {
					ip = v4
					break
				}
			}
		}
	}

	var sa unix.SockaddrInet4
	sa.Port = port
	if ip != nil {
		copy(sa.Addr[:], ip)
	}

	err = unix.Connect(fd, &sa)

	// Whatever the outcome, the handler's ConnDone gets issued: directly
	// when success or failure is known now, through the descriptor's
	// write callback otherwise. The reference taken here is matched by a
	// release inside doConnect.
	c.Acquire()
	switch {
	case err == nil:
		c.doConnect()

	case err != unix.EINPROGRESS && err != unix.EINTR:
		closeRetry(fd)
		c.fd = -1
		c.errString = "connect failed: " + err.Error()
		c.inError = true
		c.doConnect()

	default:
		c.desc = c.r.NewDescriptor(fd, nil, c.doConnect)
		c.desc.WriteWhenReady()
	}
}

func (c *Connection) doConnect() {
	// Check for errors in the connect process, unless one was already
	// detected.
	if !c.inError {
		soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		switch {
		case err != nil:
			c.errString = "connect failed: " + err.Error()
			c.inError = true
		case soerr != 0:
			c.errString = "connect failed: " + unix.Errno(soerr).Error()
			c.inError = true
		default:
			// Put the descriptor in a state to accept reads and
			// writes. There is exactly one descriptor per
			// connection lifetime: the pending-connect path made
			// it already, the immediate paths make it here.
			c.closed = false
			if c.desc == nil {
				c.desc = c.r.NewDescriptor(c.fd, c.doRead, c.doWrite)
			} else {
				c.desc.SetUpcalls(c.doRead, c.doWrite)
			}
		}
	}

	c.handler.ConnDone()

	// Matches the acquire in StartConnect.
	c.Release()
}

// StartRead starts reading continuously from the socket, filling the input
// buffer and issuing ReadDone. Reading continues for as long as ReadDone
// returns true; issue this call only once.
func (c *Connection) StartRead() {
	c.Acquire()
	c.desc.ReadWhenReady()
}

func (c *Connection) doRead() {
	for {
		c.In.Reserve(1024)
		n, err := readRetry(c.fd, c.In.WriteSlice())
		if n > 0 {
			c.In.Advance(n)
		}

		if err == unix.EAGAIN {
			c.Acquire()
			c.desc.ReadWhenReady()
			break

		} else if err != nil {
			logrus.Warnf("conn %s: error on read (%d): %v", c.id, c.fd, err)
			break

		} else if n == 0 {
			// The peer closed the socket.
			break

		} else if !c.handler.ReadDone() {
			logrus.Warnf("conn %s: error processing read (%d)", c.id, c.fd)
			break
		}

		// Keep issuing reads.
	}

	// Matches the acquire that scheduled this read.
	c.Release()
}

// StartWrite flushes the output buffer to the socket, unless a flush is
// already pending, in which case that one will pick up the new data. Issue
// this call every time the output buffer was written to.
func (c *Connection) StartWrite() {
	c.WriteMu.Lock()
	if c.writing {
		c.WriteMu.Unlock()
		return
	}
	c.writing = true
	c.WriteMu.Unlock()

	c.Acquire()
	c.doWrite()
}

func (c *Connection) doWrite() {
	for {
		// The slice below is the contiguous head of the output buffer.
		// More data may follow in later chunks; the loop gets to it on
		// the next pass.
		c.WriteMu.Lock()
		size := c.Out.ReadSize()
		data := c.Out.ReadSlice()
		c.WriteMu.Unlock()

		n, err := writeRetry(c.fd, data)

		c.WriteMu.Lock()
		if err == unix.EAGAIN {
			c.Acquire()
			c.desc.WriteWhenReady()
			c.WriteMu.Unlock()
			break

		} else if err != nil {
			logrus.Warnf("conn %s: error on write (%d): %v", c.id, c.fd, err)
			c.WriteMu.Unlock()
			break

		} else if n == 0 && size > 0 {
			logrus.Warnf("conn %s: closing on write (%d)", c.id, c.fd)
			c.WriteMu.Unlock()
			break
		}

		c.Out.Consume(n)
		if n == size && c.Out.ReadSize() == 0 {
			c.writing = false
			c.WriteMu.Unlock()
			break
		}
		c.WriteMu.Unlock()

		// Continue writing remaining data.
	}

	// Matches the acquire that scheduled this write.
	c.Release()
}

// Close closes the underlying file descriptor.
func (c *Connection) Close() {
	closeRetry(c.fd)
	c.closed = true
}

func readRetry(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func writeRetry(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func closeRetry(fd int) {
	for {
		err := unix.Close(fd)
		if err == unix.EINTR {
			continue
		}
		return
	}
}
