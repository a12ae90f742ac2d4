// Package merge implements the k-way chronological merge across ordered
// message sources. The same merger feeds single-bag playback (one source)
// and multi-bag rewrite (many sources, many outputs).
package merge

import (
	"errors"
	"fmt"

	"github.com/rzbill/replay/internal/bag"
)

// ErrNoSources is returned when a merger is built over an empty source set.
var ErrNoSources = errors.New("merge: at least one source is required")

// Source is an ordered provider of messages. Implementations guarantee the
// messages they yield are nondecreasing in timestamp; ordering across
// sources is the merger's job. ReadNext must not be called once HasNext
// reports false.
type Source interface {
	HasNext() bool
	ReadNext() (*bag.Message, error)
}

// Merger lazily merges N sources into one nondecreasing-timestamp sequence.
// It is single-pass: replaying requires a new Merger over rewound sources.
// Not safe for concurrent use.
type Merger struct {
	sources []Source
	heads   []*bag.Message
}

// New builds a merger over the given sources.
func New(sources []Source) (*Merger, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return &Merger{sources: sources, heads: make([]*bag.Message, len(sources))}, nil
}

// refill fills every empty head slot from its source.
func (m *Merger) refill() error {
	for i, src := range m.sources {
		if m.heads[i] == nil && src.HasNext() {
			msg, err := src.ReadNext()
			if err != nil {
				return fmt.Errorf("merge: source %d: %w", i, err)
			}
			m.heads[i] = msg
		}
	}
	return nil
}

// HasNext reports whether another message is available from any source.
func (m *Merger) HasNext() bool {
	for i, src := range m.sources {
		if m.heads[i] != nil || src.HasNext() {
			return true
		}
	}
	return false
}

// Next returns the earliest pending message across all sources, breaking
// timestamp ties by lowest source index. Returns (nil, nil) once every
// source is exhausted.
func (m *Merger) Next() (*bag.Message, error) {
	if err := m.refill(); err != nil {
		return nil, err
	}
	best := -1
	for i, head := range m.heads {
		if head == nil {
			continue
		}
		if best < 0 || head.Timestamp < m.heads[best].Timestamp {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}
	msg := m.heads[best]
	m.heads[best] = nil
	return msg, nil
}
