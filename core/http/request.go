// Package http implements the HTTP/1.1 adapter: an incremental byte parser,
// the server side serving cached files plus the runtime's own stats and
// shutdown endpoints, and an asynchronous client.
package http

import (
	"github.com/searchktools/reactor-server/core/buffer"
)

// Request is one parsed request line. The address is stored without its
// leading slash; an empty address means the root document.
type Request struct {
	Method  string
	Address string
	Version string
}

// Clear resets the request for reuse.
func (r *Request) Clear() {
	r.Method = ""
	r.Address = ""
	r.Version = ""
}

// CloneFrom copies other into r.
func (r *Request) CloneFrom(other *Request) {
	r.Method = other.Method
	r.Address = other.Address
	r.Version = other.Version
}

// WriteTo serializes the request into out in wire format.
func (r *Request) WriteTo(out *buffer.Buffer) {
	out.WriteString(r.Method)
	out.WriteString(" /")
	out.WriteString(r.Address)
	out.WriteString(" ")
	out.WriteString(r.Version)
	out.WriteString("\r\n\r\n")
}
