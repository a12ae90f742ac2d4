package emitter

import (
	"bytes"
	"testing"

	"github.com/rzbill/replay/internal/bag"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := &bag.Message{Topic: "sensors/imu", Timestamp: 1234567890, Payload: []byte{0x01, 0x02, 0x00}}
	b, err := EncodeEnvelope(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Topic != in.Topic || out.Timestamp != in.Timestamp || !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{0xc1, 0xff}); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.TopicPrefix != "replay" || o.ClientID == "" || o.ConnectTimeout <= 0 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}
