package http_test

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/searchktools/reactor-server/core/filecache"
	"github.com/searchktools/reactor-server/core/http"
	"github.com/searchktools/reactor-server/core/service"
)

type testServer struct {
	svc      *service.IOService
	httpd    *http.HTTPService
	finished chan struct{} // closed when Start returns
}

// newTestServer serves the files map out of a fresh working directory on an
// ephemeral port.
func newTestServer(t *testing.T, files map[string][]byte) *testServer {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("os.Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("os.Chdir restore: %v", err)
		}
	})

	for name, content := range files {
		if err := os.WriteFile(name, content, 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	svc, err := service.New(4)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}

	ts := &testServer{
		svc:      svc,
		httpd:    http.NewHTTPService(0, svc, filecache.New(50<<20)),
		finished: make(chan struct{}),
	}
	go func() {
		svc.Start()
		close(ts.finished)
	}()
	return ts
}

func (ts *testServer) stop(t *testing.T) {
	t.Helper()
	ts.svc.Stop()
	select {
	case <-ts.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func (ts *testServer) connect(t *testing.T) *http.ClientConnection {
	t.Helper()
	cc := ts.httpd.Connect("127.0.0.1", ts.httpd.Port())
	if cc == nil || !cc.OK() {
		t.Fatal("client connect failed")
	}
	return cc
}

func get(t *testing.T, cc *http.ClientConnection, address string) *http.Response {
	t.Helper()
	req := &http.Request{Method: "GET", Address: address, Version: "HTTP/1.1"}

	got := make(chan *http.Response, 1)
	cc.AsyncSend(req, func(resp *http.Response) {
		got <- resp
	})

	select {
	case resp := <-got:
		return resp
	case <-time.After(5 * time.Second):
		t.Fatalf("no response for /%s", address)
		return nil
	}
}

func TestGetFile(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 2500)
	ts := newTestServer(t, map[string][]byte{"a.html": body})
	defer ts.stop(t)

	cc := ts.connect(t)
	resp := get(t, cc, "a.html")

	if !strings.Contains(resp.StatusLine, "200") {
		t.Errorf("status line = %q", resp.StatusLine)
	}
	if !strings.Contains(resp.HeaderRemainder, "Content-Length: 2500") {
		t.Errorf("headers = %q", resp.HeaderRemainder)
	}
	if !bytes.Equal(resp.Body, body) {
		t.Errorf("body: %d bytes, want 2500 x's", len(resp.Body))
	}
}

func TestGetLargeFile(t *testing.T) {
	// Bigger than one buffer chunk; the body streams across chunks.
	body := bytes.Repeat([]byte("y"), 10000)
	ts := newTestServer(t, map[string][]byte{"big.html": body})
	defer ts.stop(t)

	cc := ts.connect(t)
	resp := get(t, cc, "big.html")

	if !bytes.Equal(resp.Body, body) {
		t.Errorf("body: %d bytes, want %d", len(resp.Body), len(body))
	}
}

func TestGetRootServesIndex(t *testing.T) {
	ts := newTestServer(t, map[string][]byte{"index.html": []byte("welcome")})
	defer ts.stop(t)

	cc := ts.connect(t)
	resp := get(t, cc, "")

	if !bytes.Equal(resp.Body, []byte("welcome")) {
		t.Errorf("root body = %q", resp.Body)
	}
}

func TestGetMissingFile(t *testing.T) {
	ts := newTestServer(t, nil)
	defer ts.stop(t)

	cc := ts.connect(t)
	resp := get(t, cc, "no-such-file.html")

	if !strings.Contains(resp.StatusLine, "503") {
		t.Errorf("status line = %q, want a 503", resp.StatusLine)
	}
	if len(resp.Body) == 0 {
		t.Error("error response carried no body")
	}
}

func TestSerialRequestsAndStats(t *testing.T) {
	const n = 5
	ts := newTestServer(t, map[string][]byte{"a.html": []byte("aaa")})
	defer ts.stop(t)

	cc := ts.connect(t)
	for i := 0; i < n; i++ {
		resp := get(t, cc, "a.html")
		if !bytes.Equal(resp.Body, []byte("aaa")) {
			t.Fatalf("request %d: body %q", i, resp.Body)
		}
	}

	resp := get(t, cc, "stats")
	count, err := strconv.Atoi(string(resp.Body))
	if err != nil {
		t.Fatalf("stats body %q is not a number: %v", resp.Body, err)
	}
	if count < 0 || count > n {
		t.Errorf("stats = %d, want between 0 and %d", count, n)
	}
}

func TestQuitStopsService(t *testing.T) {
	ts := newTestServer(t, nil)

	cc := ts.connect(t)

	// No response is promised for quit; just fire it and wait for the
	// service to wind down.
	cc.AsyncSend(&http.Request{Method: "GET", Address: "quit", Version: "HTTP/1.1"},
		func(*http.Response) {})

	select {
	case <-ts.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop on quit")
	}

	if !ts.svc.Stopped() {
		t.Error("Stopped() = false after quit")
	}
}
