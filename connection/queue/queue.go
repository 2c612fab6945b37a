/*
The queue package buffers inbound messages between the protocol layer's
goroutine and the consumer. It is bounded by an abstract amount computed
per message by a pluggable size function rather than by message count.

The limit is backpressure accounting: Push never blocks the producer.
By default messages keep accumulating past the limit and the consumer is
expected to drain; with DropWhenFull set, the oldest messages are
discarded until the new message fits.
*/
package queue

import (
	"sync"

	"github.com/getlayered/layerconn/connection/message"
)

type Queue struct {
	mu       sync.Mutex
	messages []message.Message
	amount   int

	limit        int
	dropWhenFull bool
	sizeOf       message.SizeFunc
}

func New(limit int, sizeOf message.SizeFunc) *Queue {
	if sizeOf == nil {
		sizeOf = message.DefaultSize
	}

	return &Queue{
		limit:  limit,
		sizeOf: sizeOf,
	}
}

// DropWhenFull switches the overflow policy from accounting-only to
// dropping the oldest messages. Not safe to toggle while in use; set it
// right after New.
func (q *Queue) DropWhenFull(drop bool) {
	q.dropWhenFull = drop
}

func (q *Queue) Push(m message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := q.sizeOf(m)

	if q.dropWhenFull {
		for len(q.messages) > 0 && q.amount+size > q.limit {
			q.amount -= q.sizeOf(q.messages[0])
			q.messages = q.messages[1:]
		}
	}

	q.messages = append(q.messages, m)
	q.amount += size
}

// TryPop removes and returns the oldest message, if any.
func (q *Queue) TryPop() (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return message.Message{}, false
	}

	m := q.messages[0]
	q.messages = q.messages[1:]
	q.amount -= q.sizeOf(m)
	return m, true
}

// Peek returns the oldest message without removing it.
func (q *Queue) Peek() (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return message.Message{}, false
	}
	return q.messages[0], true
}

// Amount returns the accumulated size of buffered messages.
func (q *Queue) Amount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.amount
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.messages)
}
