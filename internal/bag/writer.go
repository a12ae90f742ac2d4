package bag

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	pebblestore "github.com/rzbill/replay/internal/storage/pebble"
)

// Meta is the bag-level summary kept under KeyMeta.
type Meta struct {
	MessageCount uint64 `json:"message_count"`
	StartTime    int64  `json:"start_time_ns"`
	EndTime      int64  `json:"end_time_ns"`
	NextSeq      uint64 `json:"next_seq"`
}

// Writer appends messages to a bag. Safe for concurrent use.
type Writer struct {
	db *pebblestore.DB

	mu     sync.Mutex
	meta   Meta
	topics map[string]struct{}
}

// OpenWriter creates or opens a bag directory for appending.
func OpenWriter(dir string, fsync pebblestore.FsyncMode) (*Writer, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: fsync})
	if err != nil {
		return nil, err
	}
	w := &Writer{db: db, topics: map[string]struct{}{}}
	if raw, err := db.Get(KeyMeta()); err == nil {
		if err := json.Unmarshal(raw, &w.meta); err != nil {
			_ = db.Close()
			return nil, errors.New("bag: corrupt meta record")
		}
	}
	if err := w.loadTopics(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) loadTopics() error {
	low, high := TopicBounds()
	iter, err := w.db.NewIter(iterBounds(low, high))
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		w.topics[TopicFromKey(iter.Key())] = struct{}{}
	}
	return nil
}

// Write appends a single message as an atomic batch: entry, topic registry
// entry when first seen, and the refreshed meta record.
func (w *Writer) Write(ctx context.Context, msg *Message) error {
	if msg == nil || msg.Topic == "" {
		return errors.New("bag: message must have a topic")
	}
	if msg.Timestamp < 0 {
		return errors.New("bag: negative timestamp")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.db.NewBatch()
	defer b.Close()

	seq := w.meta.NextSeq
	if err := b.Set(KeyEntry(msg.Timestamp, seq), EncodeRecord(msg.Topic, msg.Payload), nil); err != nil {
		return err
	}
	if _, seen := w.topics[msg.Topic]; !seen {
		if err := b.Set(KeyTopic(msg.Topic), nil, nil); err != nil {
			return err
		}
	}

	meta := w.meta
	meta.NextSeq = seq + 1
	if meta.MessageCount == 0 || msg.Timestamp < meta.StartTime {
		meta.StartTime = msg.Timestamp
	}
	if meta.MessageCount == 0 || msg.Timestamp > meta.EndTime {
		meta.EndTime = msg.Timestamp
	}
	meta.MessageCount++
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := b.Set(KeyMeta(), raw, nil); err != nil {
		return err
	}
	if err := w.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	w.meta = meta
	w.topics[msg.Topic] = struct{}{}
	return nil
}

// Meta returns a snapshot of the bag summary.
func (w *Writer) Meta() Meta {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta
}

// Topics returns the sorted topic names seen so far.
func (w *Writer) Topics() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.topics))
	for t := range w.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close flushes and closes the underlying store.
func (w *Writer) Close() error { return w.db.Close() }
