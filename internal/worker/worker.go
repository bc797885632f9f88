package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants"
	"go.uber.org/zap"
)

// DefaultPath is the broker endpoint for workers.
const DefaultPath = "/ws/worker"

// closeGrace bounds how long Run waits for the broker to acknowledge a
// close frame during shutdown.
const closeGrace = 2 * time.Second

// Handler runs one message and returns the encoded reply.
type Handler interface {
	Execute(ctx context.Context, message []byte) []byte
}

// Options configures a Worker.
type Options struct {
	// Address and Port locate the broker.
	Address string
	Port    int

	// Path defaults to DefaultPath.
	Path string

	// PoolSize bounds the number of messages handled at once. Defaults to 8.
	PoolSize int

	// Reconnect is the delay between connection attempts in Serve. Zero
	// disables reconnecting.
	Reconnect time.Duration

	// IDs defaults to UUIDv7Generator.
	IDs IDGenerator

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Worker serves commands received from the broker.
type Worker struct {
	opts    Options
	handler Handler
	log     *zap.Logger
	id      string
	handled atomic.Int64
}

// New creates a worker. It does not connect until Run.
func New(handler Handler, opts Options, log *zap.Logger) *Worker {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = zap.NewNop()
	}
	id := opts.IDs.Generate()
	return &Worker{
		opts:    opts,
		handler: handler,
		log:     log.With(zap.String("worker", id)),
		id:      id,
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// URL returns the broker endpoint.
func (w *Worker) URL() string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(w.opts.Address, strconv.Itoa(w.opts.Port)),
		Path:   w.opts.Path,
	}
	return u.String()
}

// Handled returns the number of messages replied to.
func (w *Worker) Handled() int64 {
	return w.handled.Load()
}

// Serve runs the worker, reconnecting after connection failures when
// Options.Reconnect is set. It returns when ctx is cancelled, or on the
// first failure when reconnecting is disabled.
func (w *Worker) Serve(ctx context.Context) error {
	for {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if w.opts.Reconnect <= 0 {
			return err
		}
		w.log.Warn("connection to broker lost, reconnecting",
			zap.Error(err),
			zap.Duration("delay", w.opts.Reconnect),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.opts.Reconnect):
		}
	}
}

// Run connects to the broker and serves messages until ctx is cancelled or
// the connection ends. A normal close by either side returns nil.
func (w *Worker) Run(ctx context.Context) error {
	pool, err := ants.NewPool(w.opts.PoolSize)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	target := w.URL()
	w.log.Info("connecting to broker", zap.String("url", target))
	conn, _, err := w.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect to broker at %s: %w", target, err)
	}
	defer conn.Close()
	w.log.Info("connected to broker", zap.String("url", target), zap.Int("pool_size", w.opts.PoolSize))

	queue := newReplyQueue()
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- w.write(conn, queue)
	}()

	// On shutdown, ask the broker to close; the read loop ends when it
	// answers or the grace period expires.
	stop := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(closeGrace)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "worker shutting down"), deadline)
		_ = conn.SetReadDeadline(deadline)
	})
	defer stop()

	var pending sync.WaitGroup
	readErr := w.read(ctx, conn, pool, queue, &pending)

	pending.Wait()
	queue.Close()
	writeErr := <-writerDone

	switch {
	case ctx.Err() != nil:
		w.log.Info("worker stopped", zap.Int64("handled", w.Handled()))
		return nil
	case websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		w.log.Info("connection closed by broker", zap.Int64("handled", w.Handled()))
		return writeErr
	default:
		w.log.Error("connection to broker failed", zap.Error(readErr))
		return errors.Join(fmt.Errorf("read from broker: %w", readErr), writeErr)
	}
}

// read receives messages and schedules them on the pool until the
// connection fails.
func (w *Worker) read(ctx context.Context, conn *websocket.Conn, pool *ants.Pool, queue *replyQueue, pending *sync.WaitGroup) error {
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		requestID := w.opts.IDs.Generate()
		w.log.Debug("message received", zap.String("request", requestID), zap.Int("bytes", len(message)))

		pending.Add(1)
		err = pool.Submit(func() {
			defer pending.Done()
			w.handle(ctx, queue, requestID, message)
		})
		if err != nil {
			pending.Done()
			w.log.Error("could not schedule message", zap.String("request", requestID), zap.Error(err))
		}
	}
}

func (w *Worker) handle(ctx context.Context, queue *replyQueue, requestID string, message []byte) {
	start := time.Now()
	payload := w.handler.Execute(ctx, message)
	if !queue.Enqueue(reply{requestID: requestID, payload: payload}) {
		w.log.Warn("dropping reply after shutdown", zap.String("request", requestID))
		return
	}
	w.log.Debug("message handled",
		zap.String("request", requestID),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// write is the connection's only writer of data messages.
func (w *Worker) write(conn *websocket.Conn, queue *replyQueue) error {
	send := func(r reply) error {
		if err := conn.WriteMessage(websocket.TextMessage, r.payload); err != nil {
			w.log.Error("could not send reply", zap.String("request", r.requestID), zap.Error(err))
			return err
		}
		w.handled.Add(1)
		return nil
	}

	for {
		for {
			r, ok := queue.TryDequeue()
			if !ok {
				break
			}
			if err := send(r); err != nil {
				return err
			}
		}
		if _, open := <-queue.Wait(); !open {
			for r, ok := queue.TryDequeue(); ok; r, ok = queue.TryDequeue() {
				if err := send(r); err != nil {
					return err
				}
			}
			return nil
		}
	}
}
