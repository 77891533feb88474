package http

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/reactor-server/core/conn"
	"github.com/searchktools/reactor-server/core/service"
)

// ConnectCallback receives the connection once a connect attempt resolved;
// check OK on it for the outcome.
type ConnectCallback func(*ClientConnection)

// ResponseCallback receives one parsed response.
type ResponseCallback func(*Response)

// ClientConnection is the client side of an HTTP connection. Requests may be
// issued back to back; responses are matched to their callbacks in FIFO
// order, as the protocol has no other correlation.
type ClientConnection struct {
	*conn.Connection

	connectCB ConnectCallback

	respMu      sync.Mutex
	responseCBs []ResponseCallback
}

// NewClientConnection builds a connection ready for Connect.
func NewClientConnection(svc *service.IOService) *ClientConnection {
	cc := &ClientConnection{}
	cc.Connection = conn.NewClient(svc.Reactor(), cc)
	return cc
}

// Connect starts connecting to host:port; cb is issued when the attempt
// resolves, successfully or not.
func (cc *ClientConnection) Connect(host string, port int, cb ConnectCallback) {
	cc.connectCB = cb
	cc.StartConnect(host, port)
}

// ConnDone runs when the connect attempt resolved.
func (cc *ClientConnection) ConnDone() {
	// On success, start pumping the response stream.
	if cc.OK() {
		cc.StartRead()
	}

	// Tell the user they can start sending requests now, or handle the
	// error.
	cc.connectCB(cc)
}

// ReadDone drains every complete response buffered so far.
func (cc *ClientConnection) ReadDone() bool {
	for {
		if cc.In.ByteCount() == 0 {
			return true
		}

		it := cc.In.Begin()
		resp := &Response{}
		err := ParseResponse(it, resp)
		switch err {
		case nil:
			cc.In.Consume(it.BytesRead())
			cc.handleResponse(resp)

		case ErrIncomplete:
			return true

		default:
			logrus.Errorf("http %s: error parsing response", cc.ID())
			return false
		}
	}
}

func (cc *ClientConnection) handleResponse(resp *Response) {
	var cb ResponseCallback
	cc.respMu.Lock()
	if len(cc.responseCBs) > 0 {
		cb = cc.responseCBs[0]
		cc.responseCBs = cc.responseCBs[1:]
	}
	cc.respMu.Unlock()

	if cb != nil {
		cb(resp)
	}
}

// AsyncSend writes the request out and registers cb for the matching
// response.
func (cc *ClientConnection) AsyncSend(req *Request, cb ResponseCallback) {
	// Enqueue the response callback before the request bytes can leave,
	// otherwise the response might race in before the callback exists.
	cc.respMu.Lock()
	cc.responseCBs = append(cc.responseCBs, cb)

	cc.WriteMu.Lock()
	req.WriteTo(cc.Out)
	cc.WriteMu.Unlock()

	cc.respMu.Unlock()

	cc.StartWrite()
}

// Send issues req and blocks until its response arrives.
func (cc *ClientConnection) Send(req *Request) *Response {
	n := conn.NewNotification()
	var resp *Response
	cc.AsyncSend(req, func(r *Response) {
		resp = r
		n.Notify()
	})
	n.Wait()
	return resp
}
