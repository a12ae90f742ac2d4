package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rzbill/replay/internal/bag"
	"github.com/rzbill/replay/internal/bus"
	pebblestore "github.com/rzbill/replay/internal/storage/pebble"
	"github.com/rzbill/replay/pkg/log"
)

func openBag(t *testing.T) (*bag.Writer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "rec")
	w, err := bag.OpenWriter(dir, pebblestore.FsyncModeNever)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, dir
}

func publishEventually(t *testing.T, b *bus.Bus, msg *bag.Message) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.Publish(msg) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no subscriber picked up topic %q", msg.Topic)
}

func TestRecordExplicitTopics(t *testing.T) {
	w, dir := openBag(t)
	b := bus.New()

	r, err := New(b, w, Options{Topics: []string{"sensors/imu"}}, log.Discard())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if r.ID() == "" {
		t.Fatal("expected a session id")
	}

	done := make(chan error, 1)
	go func() { done <- r.Record(context.Background()) }()

	publishEventually(t, b, &bag.Message{Topic: "sensors/imu", Timestamp: 10, Payload: []byte("a")})
	publishEventually(t, b, &bag.Message{Topic: "sensors/imu", Timestamp: 20, Payload: []byte("b")})
	// Not subscribed, must not land in the bag.
	b.Publish(&bag.Message{Topic: "sensors/gps", Timestamp: 15, Payload: []byte("x")})

	waitForCount(t, w, 2)
	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rd, err := bag.OpenReader(dir)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer rd.Close()
	var got []string
	for rd.HasNext() {
		msg, err := rd.ReadNext()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, msg.Topic)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %v", len(got), got)
	}
	for _, topic := range got {
		if topic != "sensors/imu" {
			t.Fatalf("unexpected topic %q in bag", topic)
		}
	}
}

func TestRecordDiscoversTopics(t *testing.T) {
	w, _ := openBag(t)
	b := bus.New()

	// Topic exists on the bus before the session starts.
	ch, unsub := b.Subscribe("sensors/lidar", 1)
	defer unsub()
	go func() {
		for range ch {
		}
	}()

	r, err := New(b, w, Options{PollInterval: 5 * time.Millisecond}, log.Discard())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Record(context.Background()) }()

	// Keep publishing until the discovery loop has attached and one
	// write has landed; each publish reaches whoever is subscribed.
	deadline := time.Now().Add(2 * time.Second)
	for ts := int64(1); w.Meta().MessageCount == 0; ts++ {
		if !time.Now().Before(deadline) {
			t.Fatal("discovery never captured a message")
		}
		b.Publish(&bag.Message{Topic: "sensors/lidar", Timestamp: ts, Payload: []byte("p")})
		time.Sleep(2 * time.Millisecond)
	}
	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestRecordStampsMissingTimestamps(t *testing.T) {
	w, dir := openBag(t)
	b := bus.New()

	r, err := New(b, w, Options{Topics: []string{"t"}}, log.Discard())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Record(context.Background()) }()

	before := time.Now().UnixNano()
	publishEventually(t, b, &bag.Message{Topic: "t", Payload: []byte("p")})
	waitForCount(t, w, 1)
	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rd, err := bag.OpenReader(dir)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer rd.Close()
	msg, err := rd.ReadNext()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Timestamp < before {
		t.Fatalf("timestamp %d not stamped at receive time (>= %d)", msg.Timestamp, before)
	}
}

func TestRecordAppliesFilter(t *testing.T) {
	w, _ := openBag(t)
	b := bus.New()

	r, err := New(b, w, Options{Topics: []string{"t"}, Filter: `size > 1`}, log.Discard())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Record(context.Background()) }()

	publishEventually(t, b, &bag.Message{Topic: "t", Timestamp: 1, Payload: []byte("x")})
	publishEventually(t, b, &bag.Message{Topic: "t", Timestamp: 2, Payload: []byte("xx")})

	waitForCount(t, w, 1)
	r.Stop()
	if err := <-done; err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := w.Meta().MessageCount; got != 1 {
		t.Fatalf("message count = %d, want 1", got)
	}
}

func waitForCount(t *testing.T, w *bag.Writer, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Meta().MessageCount >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("bag has %d messages, want %d", w.Meta().MessageCount, want)
}
