package bag

import (
	"bytes"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	val := EncodeRecord("/odom", []byte("payload-bytes"))
	topic, payload, ok := DecodeRecord(val)
	if !ok {
		t.Fatalf("decode failed")
	}
	if topic != "/odom" || !bytes.Equal(payload, []byte("payload-bytes")) {
		t.Fatalf("decode = (%q, %q)", topic, payload)
	}
}

func TestRecordEmptyPayload(t *testing.T) {
	topic, payload, ok := DecodeRecord(EncodeRecord("/tick", nil))
	if !ok || topic != "/tick" || len(payload) != 0 {
		t.Fatalf("decode = (%q, %q, %v)", topic, payload, ok)
	}
}

func TestRecordRejectsCorruption(t *testing.T) {
	val := EncodeRecord("/odom", []byte("payload"))
	val[len(val)/2] ^= 0xFF
	if _, _, ok := DecodeRecord(val); ok {
		t.Fatalf("expected crc mismatch to be rejected")
	}
	if _, _, ok := DecodeRecord([]byte{0x01}); ok {
		t.Fatalf("expected truncated record to be rejected")
	}
}
