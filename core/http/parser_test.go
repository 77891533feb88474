package http

import (
	"bytes"
	"strings"
	"testing"

	"github.com/searchktools/reactor-server/core/buffer"
)

func bufFor(s string) *buffer.Buffer {
	b := buffer.New()
	b.WriteString(s)
	return b
}

func TestParseRequest(t *testing.T) {
	raw := "GET /a.html HTTP/1.1\r\nHost: localhost\r\nUser-Agent: test\r\n\r\n"
	b := bufFor(raw)

	var req Request
	it := b.Begin()
	if err := ParseRequest(it, &req); err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Method != "GET" || req.Address != "a.html" || req.Version != "HTTP/1.1" {
		t.Errorf("parsed %+v", req)
	}
	if it.BytesRead() != len(raw) {
		t.Errorf("BytesRead = %d, want %d", it.BytesRead(), len(raw))
	}
}

func TestParseRequestRoot(t *testing.T) {
	b := bufFor("GET / HTTP/1.1\r\n\r\n")

	var req Request
	if err := ParseRequest(b.Begin(), &req); err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Address != "" {
		t.Errorf("root address = %q, want empty", req.Address)
	}
}

func TestParseRequestIncomplete(t *testing.T) {
	for _, raw := range []string{
		"",
		"GET",
		"GET /a.html HT",
		"GET /a.html HTTP/1.1\r\n",
		"GET /a.html HTTP/1.1\r\nHost: x\r\n",
	} {
		b := bufFor(raw)
		var req Request
		if err := ParseRequest(b.Begin(), &req); err != ErrIncomplete {
			t.Errorf("ParseRequest(%q) = %v, want ErrIncomplete", raw, err)
		}
	}
}

func TestParseRequestMalformed(t *testing.T) {
	for _, raw := range []string{
		"GET a.html HTTP/1.1\r\n\r\n",     // missing leading slash
		"GET /a.html HTTP/1.1\rX\r\n\r\n", // bare CR
	} {
		b := bufFor(raw)
		var req Request
		if err := ParseRequest(b.Begin(), &req); err != ErrMalformed {
			t.Errorf("ParseRequest(%q) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestParsePipelinedRequests(t *testing.T) {
	b := bufFor("GET /one HTTP/1.1\r\n\r\nGET /two HTTP/1.1\r\n\r\n")

	var req Request
	it := b.Begin()
	if err := ParseRequest(it, &req); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if req.Address != "one" {
		t.Errorf("first address = %q", req.Address)
	}
	b.Consume(it.BytesRead())

	it = b.Begin()
	if err := ParseRequest(it, &req); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if req.Address != "two" {
		t.Errorf("second address = %q", req.Address)
	}
	b.Consume(it.BytesRead())

	if b.ByteCount() != 0 {
		t.Errorf("%d bytes left after both requests", b.ByteCount())
	}
}

func TestParseRequestAcrossChunks(t *testing.T) {
	// A header long enough to straddle a chunk boundary.
	raw := "GET /big HTTP/1.1\r\nX-Padding: " +
		strings.Repeat("p", buffer.BlockSize+50) + "\r\n\r\n"
	b := bufFor(raw)

	var req Request
	it := b.Begin()
	if err := ParseRequest(it, &req); err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Address != "big" {
		t.Errorf("address = %q", req.Address)
	}
	if it.BytesRead() != len(raw) {
		t.Errorf("BytesRead = %d, want %d", it.BytesRead(), len(raw))
	}
}

func TestParseResponse(t *testing.T) {
	b := bufFor("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nContent-Type: text/html\r\n\r\nhello")

	var resp Response
	it := b.Begin()
	if err := ParseResponse(it, &resp); err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.StatusLine != "HTTP/1.1 200 OK" {
		t.Errorf("status line = %q", resp.StatusLine)
	}
	if !bytes.Equal(resp.Body, []byte("hello")) {
		t.Errorf("body = %q", resp.Body)
	}
	if !strings.Contains(resp.HeaderRemainder, "Content-Length: 5") {
		t.Errorf("headers = %q", resp.HeaderRemainder)
	}
}

func TestParseResponseBodyIncomplete(t *testing.T) {
	b := bufFor("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhel")

	var resp Response
	if err := ParseResponse(b.Begin(), &resp); err != ErrIncomplete {
		t.Errorf("ParseResponse = %v, want ErrIncomplete", err)
	}
}

func TestRequestWriteTo(t *testing.T) {
	req := Request{Method: "GET", Address: "a.html", Version: "HTTP/1.1"}
	out := buffer.New()
	req.WriteTo(out)

	var parsed Request
	if err := ParseRequest(out.Begin(), &parsed); err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if parsed != req {
		t.Errorf("round trip = %+v, want %+v", parsed, req)
	}
}
