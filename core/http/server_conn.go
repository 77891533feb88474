package http

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/reactor-server/core/buffer"
	"github.com/searchktools/reactor-server/core/conn"
	"github.com/searchktools/reactor-server/core/filecache"
	"github.com/searchktools/reactor-server/core/pools"
	"github.com/searchktools/reactor-server/core/service"
	"github.com/searchktools/reactor-server/core/stats"
)

const (
	serverName = "reactor-server"
	dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

const errorBody = "<HTML>\r\n" +
	"<HEAD><TITLE>503 Service Unavailable</TITLE></HEAD>\r\n" +
	"<BODY>Service Unavailable</BODY>\r\n" +
	"</HTML>\r\n"

// ServerConnection handles the server side of one HTTP connection: GET
// requests for documents, plus the special 'quit' and 'stats' addresses. The
// former shuts down the whole service this connection belongs to; the latter
// reports its current requests-per-second.
//
// ReadDone is never called concurrently with itself, so the request state
// needs no lock; everything written to the output buffer happens under the
// connection's write mutex because the flushing machinery reads from that
// buffer concurrently.
type ServerConnection struct {
	*conn.Connection

	svc     *service.IOService
	cache   *filecache.FileCache
	request Request
}

// NewServerConnection starts serving an accepted socket.
func NewServerConnection(svc *service.IOService, cache *filecache.FileCache, fd int) *ServerConnection {
	sc := &ServerConnection{svc: svc, cache: cache}
	sc.Connection = conn.New(svc.Reactor(), fd, sc)
	sc.StartRead()
	return sc
}

// ConnDone is unused on the server side.
func (sc *ServerConnection) ConnDone() {}

// ReadDone drains every complete request buffered so far; requests pipeline
// serially on the socket.
func (sc *ServerConnection) ReadDone() bool {
	for {
		it := sc.In.Begin()
		err := ParseRequest(it, &sc.request)
		switch err {
		case nil:
			sc.In.Consume(it.BytesRead())
			if !sc.handleRequest(&sc.request) {
				return false
			}

		case ErrIncomplete:
			return true

		default:
			logrus.Errorf("http %s: error parsing request", sc.ID())
			return false
		}
	}
}

func (sc *ServerConnection) handleRequest(req *Request) bool {
	// Remote shutdown of the service this connection belongs to.
	if req.Address == "quit" {
		logrus.Infof("http %s: server stop requested", sc.ID())
		sc.svc.Stop()
		return false
	}

	if req.Address == "stats" {
		sc.serveStats()
		return true
	}

	// A request for the root document means index.html.
	address := req.Address
	if address == "" {
		address = "index.html"
	}
	sc.serveFile(address)

	if me := pools.ME(); me >= 0 {
		sc.svc.Stats().Finished(me, stats.Now())
	}

	sc.StartWrite()
	return true
}

func (sc *ServerConnection) serveStats() {
	body := strconv.FormatUint(uint64(sc.svc.Stats().LastSec(stats.Now())), 10)

	sc.WriteMu.Lock()
	sc.writeHeader("200 OK", len(body))
	sc.Out.WriteString(body)
	sc.WriteMu.Unlock()

	sc.StartWrite()
}

func (sc *ServerConnection) serveFile(address string) {
	h, cached, err := sc.cache.Pin(address)
	switch {
	case h != nil:
		sc.WriteMu.Lock()
		sc.writeHeader("200 OK", cached.ByteCount())
		sc.Out.CopyFrom(cached)
		sc.WriteMu.Unlock()
		sc.cache.Unpin(h)

	case err == nil:
		// The cache has no unpinned room; serve straight from disk.
		if !sc.serveFromDisk(address) {
			sc.serveError()
		}

	default:
		sc.serveError()
	}
}

// serveFromDisk streams a file into the output buffer without going through
// the cache.
func (sc *ServerConnection) serveFromDisk(address string) bool {
	f, err := os.Open(address)
	if err != nil {
		return false
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return false
	}

	sc.WriteMu.Lock()
	sc.writeHeader("200 OK", int(st.Size()))
	sc.WriteMu.Unlock()

	var chunk [buffer.BlockSize]byte
	for {
		n, err := f.Read(chunk[:])
		if n > 0 {
			sc.WriteMu.Lock()
			sc.Out.Write(chunk[:n])
			sc.WriteMu.Unlock()
		}
		if err != nil {
			// Either EOF or a mid-body read error; in the latter
			// case the response is already underway, so the short
			// body is what the peer gets.
			return true
		}
	}
}

func (sc *ServerConnection) serveError() {
	sc.WriteMu.Lock()
	sc.writeHeader("503 Service Unavailable", len(errorBody))
	sc.Out.WriteString(errorBody)
	sc.WriteMu.Unlock()
}

// writeHeader emits the status line and the fixed header set. Callers hold
// WriteMu.
func (sc *ServerConnection) writeHeader(status string, contentLength int) {
	sc.Out.WriteString("HTTP/1.1 ")
	sc.Out.WriteString(status)
	sc.Out.WriteString("\r\n")
	sc.Out.WriteString("Date: ")
	sc.Out.WriteString(time.Now().UTC().Format(dateFormat))
	sc.Out.WriteString("\r\n")
	sc.Out.WriteString("Server: " + serverName + "\r\n")
	sc.Out.WriteString("Accept-Ranges: bytes\r\n")
	sc.Out.WriteString("Content-Length: ")
	sc.Out.WriteString(strconv.Itoa(contentLength))
	sc.Out.WriteString("\r\n")
	sc.Out.WriteString("Content-Type: text/html\r\n")
	sc.Out.WriteString("\r\n")
}
