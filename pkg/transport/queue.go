package transport

import "sync"

// sendQueue is an unbounded FIFO drained by a single write pump. Pushes never
// block and never drop; close lets the pump flush what is left.
type sendQueue[T any] struct {
	items  []T
	closed bool
	mx     sync.Mutex

	wake chan struct{}
}

func newSendQueue[T any]() *sendQueue[T] {
	return &sendQueue[T]{
		wake: make(chan struct{}, 1),
	}
}

// push appends item. It fails only after close, or when limit > 0 and the
// backlog already holds limit items.
func (q *sendQueue[T]) push(item T, limit int) error {
	q.mx.Lock()
	defer q.mx.Unlock()

	if q.closed {
		return ErrChannelUnavailable
	}

	if limit > 0 && len(q.items) >= limit {
		return ErrSendQueueFull
	}

	q.items = append(q.items, item)
	q.notify()

	return nil
}

func (q *sendQueue[T]) close() {
	q.mx.Lock()
	defer q.mx.Unlock()

	q.closed = true
	q.notify()
}

func (q *sendQueue[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next blocks until an item is queued, the queue is closed and drained, or
// stop fires.
func (q *sendQueue[T]) next(stop <-chan struct{}) (T, bool) {
	for {
		q.mx.Lock()
		if len(q.items) != 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mx.Unlock()

			return item, true
		}
		closed := q.closed
		q.mx.Unlock()

		if closed {
			var zero T
			return zero, false
		}

		select {
		case <-q.wake:
		case <-stop:
			var zero T
			return zero, false
		}
	}
}
