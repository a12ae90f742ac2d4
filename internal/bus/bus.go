// Package bus is a minimal in-process pub/sub fabric. It is the default
// live sink for playback and the source the recorder captures from.
package bus

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rzbill/replay/internal/bag"
)

// Bus fans messages out to per-topic subscribers. Publish is non-blocking:
// subscribers that cannot keep up lose messages, counted in Dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan *bag.Message
	nextID int
	seen   map[string]struct{}

	dropped atomic.Uint64
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs: map[string]map[int]chan *bag.Message{},
		seen: map[string]struct{}{},
	}
}

// Subscribe registers a buffered subscription on a topic. The returned
// cancel function unregisters and closes the channel; it is idempotent.
func (b *Bus) Subscribe(topic string, buf int) (<-chan *bag.Message, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan *bag.Message, buf)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = map[int]chan *bag.Message{}
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if m := b.subs[topic]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subs, topic)
				}
			}
			// Closed under the lock so Publish can never send on a
			// closed channel.
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers a message to every subscriber of its topic. It reports
// false when no subscriber is registered for the topic, mirroring a live
// transport with no destination.
func (b *Bus) Publish(msg *bag.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen[msg.Topic] = struct{}{}
	m := b.subs[msg.Topic]
	if len(m) == 0 {
		return false
	}
	// Sends stay under the lock; they never block, and this keeps a
	// concurrent cancel from closing a channel mid-send.
	for _, ch := range m {
		select {
		case ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return true
}

// Topics returns every topic name observed so far, sorted. Used by the
// recorder's discovery poll.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.seen))
	for t := range b.seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Dropped returns the number of messages lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
