package bag

import (
	"context"
	"testing"

	pebblestore "github.com/rzbill/replay/internal/storage/pebble"
)

func writeTestBag(t *testing.T, msgs []*Message) string {
	t.Helper()
	dir := t.TempDir()
	w, err := OpenWriter(dir, pebblestore.FsyncModeAlways)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	ctx := context.Background()
	for _, m := range msgs {
		if err := w.Write(ctx, m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return dir
}

func openTestReader(t *testing.T, dir string) *Reader {
	t.Helper()
	r, err := OpenReader(dir)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestWriteThenReadInOrder(t *testing.T) {
	dir := writeTestBag(t, []*Message{
		{Topic: "/a", Timestamp: 100, Payload: []byte("one")},
		{Topic: "/b", Timestamp: 50, Payload: []byte("two")},
		{Topic: "/a", Timestamp: 200, Payload: []byte("three")},
	})
	r := openTestReader(t, dir)

	var got []int64
	for r.HasNext() {
		m, err := r.ReadNext()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, m.Timestamp)
	}
	want := []int64{50, 100, 200}
	if len(got) != len(want) {
		t.Fatalf("read %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestMetaSummarizesBag(t *testing.T) {
	dir := writeTestBag(t, []*Message{
		{Topic: "/a", Timestamp: 100},
		{Topic: "/b", Timestamp: 50},
	})
	r := openTestReader(t, dir)
	meta := r.Meta()
	if meta.MessageCount != 2 || meta.StartTime != 50 || meta.EndTime != 100 {
		t.Fatalf("meta = %+v", meta)
	}
	topics := r.Topics()
	if len(topics) != 2 || topics[0] != "/a" || topics[1] != "/b" {
		t.Fatalf("topics = %v", topics)
	}
}

func TestSeekRepositions(t *testing.T) {
	dir := writeTestBag(t, []*Message{
		{Topic: "/a", Timestamp: 10},
		{Topic: "/a", Timestamp: 20},
		{Topic: "/a", Timestamp: 30},
	})
	r := openTestReader(t, dir)
	if err := r.Seek(15); err != nil {
		t.Fatalf("seek: %v", err)
	}
	m, err := r.ReadNext()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Timestamp != 20 {
		t.Fatalf("seek(15) read ts=%d, want 20", m.Timestamp)
	}

	// Re-seek backwards works too.
	if err := r.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	m, err = r.ReadNext()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Timestamp != 10 {
		t.Fatalf("seek(0) read ts=%d, want 10", m.Timestamp)
	}
}

func TestTopicFilter(t *testing.T) {
	dir := writeTestBag(t, []*Message{
		{Topic: "/keep", Timestamp: 1},
		{Topic: "/drop", Timestamp: 2},
		{Topic: "/keep", Timestamp: 3},
	})
	r := openTestReader(t, dir)
	r.SetFilter([]string{"/keep"})
	var topics []string
	for r.HasNext() {
		m, err := r.ReadNext()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		topics = append(topics, m.Topic)
	}
	if len(topics) != 2 {
		t.Fatalf("filtered read returned %v", topics)
	}
	for _, topic := range topics {
		if topic != "/keep" {
			t.Fatalf("filter leaked topic %q", topic)
		}
	}
}

func TestAppendAcrossReopen(t *testing.T) {
	dir := writeTestBag(t, []*Message{{Topic: "/a", Timestamp: 10}})
	w, err := OpenWriter(dir, pebblestore.FsyncModeAlways)
	if err != nil {
		t.Fatalf("reopen writer: %v", err)
	}
	if err := w.Write(context.Background(), &Message{Topic: "/a", Timestamp: 20}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := w.Meta().MessageCount; got != 2 {
		t.Fatalf("count after reopen = %d, want 2", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenReaderRejectsNonBag(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = db.Close()
	if _, err := OpenReader(dir); err != ErrNotABag {
		t.Fatalf("OpenReader = %v, want ErrNotABag", err)
	}
}

func TestWriteRejectsNegativeTimestamp(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, pebblestore.FsyncModeNever)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer w.Close()
	err = w.Write(context.Background(), &Message{Topic: "/a", Timestamp: -1, Payload: []byte("x")})
	if err == nil {
		t.Fatal("expected negative timestamp to be rejected")
	}
	if got := w.Meta().MessageCount; got != 0 {
		t.Fatalf("message count = %d after rejected write, want 0", got)
	}
}
