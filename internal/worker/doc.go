// Package worker connects to the broker's websocket endpoint and serves
// commands.
//
// The broker forwards each client request to an idle worker as one text
// message and relays the worker's reply back to the client. A worker
// therefore has a single connection, reads messages in a loop, runs each
// one on a bounded goroutine pool and writes every reply through a single
// writer goroutine: gorilla/websocket connections allow one concurrent
// reader and one concurrent writer.
//
// Thread-safety model:
//   - Run: call once; returns when the context is cancelled or the
//     connection fails
//   - reply queue: enqueued from pool goroutines, drained by the writer
package worker
