package http

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/conn"
	"github.com/searchktools/reactor-server/core/filecache"
	"github.com/searchktools/reactor-server/core/service"
)

// HTTPService forms HTTP connections, server and client side, over a given
// IOService. The server side answers document requests out of the file
// cache; the special 'quit' address stops the underlying IOService and
// 'stats' returns its request rate.
type HTTPService struct {
	svc      *service.IOService
	cache    *filecache.FileCache
	acceptor *conn.Acceptor
}

// NewHTTPService registers a listening HTTP server at port on svc. An HTTP
// service instance always has a server running.
func NewHTTPService(port int, svc *service.IOService, cache *filecache.FileCache) *HTTPService {
	hs := &HTTPService{svc: svc, cache: cache}
	hs.acceptor = svc.RegisterAcceptor(port, hs.acceptConnection)
	return hs
}

// Port returns the port the server side is listening on.
func (hs *HTTPService) Port() int { return hs.acceptor.Port() }

func (hs *HTTPService) acceptConnection(fd int) {
	if hs.svc.Stopped() {
		if fd >= 0 {
			unix.Close(fd)
		}
		return
	}

	if fd < 0 {
		logrus.Errorf("http: error accepting connection")
		hs.svc.Stop()
		return
	}

	// The connection tears itself down when the peer closes the socket.
	NewServerConnection(hs.svc, hs.cache, fd)
}

// AsyncConnect tries to connect to host:port and issues cb with the
// resulting attempt.
func (hs *HTTPService) AsyncConnect(host string, port int, cb ConnectCallback) {
	if hs.svc.Stopped() {
		return
	}
	cc := NewClientConnection(hs.svc)
	cc.Connect(host, port, cb)
}

// Connect is the synchronous dual of AsyncConnect.
func (hs *HTTPService) Connect(host string, port int) *ClientConnection {
	n := conn.NewNotification()
	var out *ClientConnection
	hs.AsyncConnect(host, port, func(cc *ClientConnection) {
		out = cc
		n.Notify()
	})
	n.Wait()
	return out
}
