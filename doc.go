/*
Package reactorserver is a small-footprint HTTP serving runtime built
directly on the operating system's edge-triggered readiness interface.

It accepts TCP connections, parses HTTP/1.1 requests, serves static files out
of a pinned in-memory cache, and exposes a request-rate endpoint plus a
remote shutdown endpoint. The same machinery also works as a client: connect,
issue requests, await responses.

The interesting part is the I/O and concurrency substrate underneath:

  - core/poller: thin wrapper over epoll (Linux) and kqueue (BSD/macOS) in
    edge-triggered mode
  - core/reactor: the polling loop that fans readiness out to per-descriptor
    callbacks, runs timers, and collects dead descriptors
  - core/pools: the worker pool the callbacks run on, with a free-worker
    fast path that skips the shared queue under light load
  - core/buffer: the chunked streaming buffer producers and consumers share
  - core/conn: reference-counted connections and the accept loop
  - core/service: the facade tying reactor, acceptors and stats together
  - core/filecache: the pin/unpin file cache with FIFO eviction
  - core/stats: per-worker rolling one-second request counters
  - core/http: the HTTP/1.1 parser, server and client built on all of the
    above

Quick start:

	package main

	import (
	    "github.com/searchktools/reactor-server/app"
	    "github.com/searchktools/reactor-server/config"
	)

	func main() {
	    cfg := config.New()
	    cfg.Port = 8080

	    a, err := app.New(cfg)
	    if err != nil {
	        // handle
	    }
	    a.Run() // serves until /quit or SIGTERM
	}

The bundled command does the same from the command line:

	server <port> <num-workers>
*/
package reactorserver
