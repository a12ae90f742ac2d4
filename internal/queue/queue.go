// Package queue provides the read-ahead buffer between the bag loader and
// the timed delivery loop.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/rzbill/replay/internal/bag"
)

// Queue is a concurrent-safe FIFO of messages with a lock-free approximate
// size. Capacity is advisory: Enqueue never blocks or rejects; the loader
// self-throttles on SizeApprox instead.
//
// Peek and Pop are safe against a concurrent Enqueue, but concurrent peeks
// from two consumers (steady delivery vs. step) must be serialized by the
// caller; the player does so under its delivery lock.
type Queue struct {
	mu    sync.Mutex
	items []*bag.Message
	head  int
	size  atomic.Int64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a message. Never blocks.
func (q *Queue) Enqueue(msg *bag.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.size.Add(1)
}

// Peek returns the head message without removing it, or nil when empty.
func (q *Queue) Peek() *bag.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return nil
	}
	return q.items[q.head]
}

// Pop removes the head message, reporting whether anything was removed.
func (q *Queue) Pop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return false
	}
	q.items[q.head] = nil
	q.head++
	q.size.Add(-1)
	// Reclaim the consumed prefix once it dominates the backing slice.
	if q.head > 64 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return true
}

// SizeApprox returns a lock-light size estimate for flow control.
func (q *Queue) SizeApprox() int {
	n := q.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
