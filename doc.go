/*
Package fastserver is an event-driven static file server for Linux.

A single reactor goroutine multiplexes every client socket through epoll,
evicts idle connections from a timer min-heap and hands reads and writes
to a fixed pool of OS-thread-locked workers. Responses are built from a
status line and headers in a growable buffer, followed by the memory-mapped
file, and sent with one writev.

Features

  - epoll reactor with level- or edge-triggered interest (trig_mode 0-3)
  - one-shot re-arming, so a connection is never handled by two workers
  - idle eviction with a min-heap keyed by file descriptor
  - zero-copy file bodies through read-only mmap and writev
  - HTTP/1.1 keep-alive, GET and URL-encoded POST forms
  - JSON file, FASTSTATIC_* environment and flag configuration
  - structured logging with zerolog

Quick Start

	package main

	import (
	    "github.com/searchktools/fast-static/app"
	    "github.com/searchktools/fast-static/config"
	)

	func main() {
	    app.New(config.New()).Run()
	}

Run it with a config file and a resource directory:

	fast-static -config config.json -root ./resources -port 1234

Modules

  - app: process lifecycle, logger, graceful shutdown
  - config: flags, JSON file and environment configuration
  - core: reactor (Engine), Connection, listen socket, statistics
  - core/buffer: growable read/write buffer with readv support
  - core/http: incremental request parser and response builder
  - core/mapped: scoped read-only file mappings
  - core/observability: per-status response counts and latency
  - core/poller: epoll with eventfd wake-ups
  - core/pools: worker pool, byte and connection pools, GC tuning
  - core/timer: idle-timeout min-heap
*/
package fastserver
