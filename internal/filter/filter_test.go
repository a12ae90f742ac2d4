package filter

import (
	"testing"

	"github.com/rzbill/replay/internal/bag"
)

func TestDisabledAdmitsEverything(t *testing.T) {
	f, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if f.Enabled() {
		t.Fatalf("empty expression should disable the filter")
	}
	if !f.Admit(&bag.Message{Topic: "/anything", Timestamp: 1}) {
		t.Fatalf("disabled filter rejected a message")
	}
}

func TestTopicExpression(t *testing.T) {
	f, err := New(`topic.startsWith("/camera")`)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !f.Admit(&bag.Message{Topic: "/camera/image"}) {
		t.Fatalf("matching topic rejected")
	}
	if f.Admit(&bag.Message{Topic: "/imu"}) {
		t.Fatalf("non-matching topic admitted")
	}
}

func TestTimestampAndSize(t *testing.T) {
	f, err := New(`ts_ns >= 100 && size < 10`)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !f.Admit(&bag.Message{Topic: "/t", Timestamp: 150, Payload: []byte("ok")}) {
		t.Fatalf("expected admit")
	}
	if f.Admit(&bag.Message{Topic: "/t", Timestamp: 50, Payload: []byte("ok")}) {
		t.Fatalf("expected reject on ts_ns")
	}
}

func TestMalformedExpressionErrors(t *testing.T) {
	if _, err := New("topic ==="); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, err := New("no_such_var == 1"); err == nil {
		t.Fatalf("expected check error for unknown variable")
	}
}
