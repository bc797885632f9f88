package worker

import "sync"

// reply is one encoded response waiting to be written.
type reply struct {
	requestID string
	payload   []byte
}

// replyQueue is an unbounded FIFO of replies. Pool goroutines enqueue
// without blocking on a slow connection; the writer goroutine drains it.
type replyQueue struct {
	mu      sync.Mutex
	replies []reply
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newReplyQueue() *replyQueue {
	return &replyQueue{
		replies: make([]reply, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a reply to the back of the queue. Returns false if the queue
// is closed.
func (q *replyQueue) Enqueue(r reply) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.replies = append(q.replies, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front reply without blocking.
func (q *replyQueue) TryDequeue() (reply, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.replies) == 0 {
		return reply{}, false
	}
	r := q.replies[0]
	q.replies[0] = reply{}
	if len(q.replies) == 1 {
		q.replies = q.replies[:0]
	} else {
		q.replies = q.replies[1:]
	}
	return r, true
}

// Wait returns a channel that signals when replies may be available. It is
// closed by Close.
func (q *replyQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued replies.
func (q *replyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.replies)
}

// Close stops further enqueues and wakes the writer.
func (q *replyQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
