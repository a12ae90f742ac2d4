package bag

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/replay/internal/storage/pebble"
)

// ErrNotABag is returned when a directory holds no bag meta record.
var ErrNotABag = errors.New("bag: no meta record found")

// Reader iterates a bag in timestamp order and supports arbitrary re-seek.
// It is not safe for concurrent use; the playback engine serializes access
// between its loader and seek under a single mutex.
type Reader struct {
	db     *pebblestore.DB
	iter   *pebble.Iterator
	meta   Meta
	topics []string
	filter map[string]struct{}
	valid  bool
}

func iterBounds(low, high []byte) *pebble.IterOptions {
	return &pebble.IterOptions{LowerBound: low, UpperBound: high}
}

// OpenReader opens a bag directory for playback.
func OpenReader(dir string) (*Reader, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	r := &Reader{db: db}
	raw, err := db.Get(KeyMeta())
	if err != nil {
		_ = db.Close()
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrNotABag
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.meta); err != nil {
		_ = db.Close()
		return nil, errors.New("bag: corrupt meta record")
	}
	if err := r.loadTopics(); err != nil {
		_ = db.Close()
		return nil, err
	}
	low, high := EntryBounds()
	iter, err := db.NewIter(iterBounds(low, high))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r.iter = iter
	r.valid = iter.First()
	r.skipFiltered()
	return r, nil
}

func (r *Reader) loadTopics() error {
	low, high := TopicBounds()
	iter, err := r.db.NewIter(iterBounds(low, high))
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		r.topics = append(r.topics, TopicFromKey(iter.Key()))
	}
	sort.Strings(r.topics)
	return nil
}

// SetFilter restricts playback to the given topics. Empty or nil clears the
// filter. Takes effect from the current position.
func (r *Reader) SetFilter(topics []string) {
	if len(topics) == 0 {
		r.filter = nil
		return
	}
	r.filter = make(map[string]struct{}, len(topics))
	for _, t := range topics {
		r.filter[t] = struct{}{}
	}
	r.skipFiltered()
}

func (r *Reader) admits(topic string) bool {
	if r.filter == nil {
		return true
	}
	_, ok := r.filter[topic]
	return ok
}

// skipFiltered advances past entries excluded by the topic filter.
func (r *Reader) skipFiltered() {
	for r.valid {
		topic, _, ok := DecodeRecord(r.iter.Value())
		if ok && r.admits(topic) {
			return
		}
		if !ok {
			// Leave corrupt entries to ReadNext so the error surfaces.
			return
		}
		r.valid = r.iter.Next()
	}
}

// HasNext reports whether another message is available.
func (r *Reader) HasNext() bool { return r.valid }

// ReadNext returns the message at the current position and advances.
// Calling it after HasNext reports false is a programming error.
func (r *Reader) ReadNext() (*Message, error) {
	if !r.valid {
		return nil, errors.New("bag: read past end")
	}
	ts, _, ok := ParseEntryKey(r.iter.Key())
	if !ok {
		return nil, fmt.Errorf("bag: malformed entry key %q", r.iter.Key())
	}
	topic, payload, ok := DecodeRecord(r.iter.Value())
	if !ok {
		return nil, fmt.Errorf("bag: corrupt record at ts=%d", ts)
	}
	r.valid = r.iter.Next()
	r.skipFiltered()
	return &Message{Topic: topic, Timestamp: ts, Payload: payload}, nil
}

// Seek repositions to the first message with timestamp >= ts.
func (r *Reader) Seek(ts int64) error {
	r.valid = r.iter.SeekGE(KeyEntry(ts, 0))
	r.skipFiltered()
	return r.iter.Error()
}

// Meta returns the bag summary loaded at open.
func (r *Reader) Meta() Meta { return r.meta }

// StartTime returns the earliest recorded timestamp.
func (r *Reader) StartTime() int64 { return r.meta.StartTime }

// Topics returns the sorted topic names recorded in the bag.
func (r *Reader) Topics() []string { return r.topics }

// Close releases the iterator and the underlying store.
func (r *Reader) Close() error {
	if r.iter != nil {
		_ = r.iter.Close()
		r.iter = nil
	}
	return r.db.Close()
}
