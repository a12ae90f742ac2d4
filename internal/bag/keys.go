package bag

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - bag/m                    meta record (JSON)
// - bag/t/{topic}            topic registry entry
// - bag/e/{ts_be8}{seq_be8}  message entry, ordered by timestamp then
//                            insertion sequence for stable tie-breaks
//
// Timestamps must be non-negative: uint64 big-endian encoding would sort a
// negative int64 after every valid one. The writer rejects them.

var (
	metaKeyBytes = []byte("bag/m")
	topicPrefix  = []byte("bag/t/")
	entryPrefix  = []byte("bag/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyMeta returns the bag meta key.
func KeyMeta() []byte { return metaKeyBytes }

// KeyTopic builds the registry key for a topic name.
func KeyTopic(topic string) []byte {
	k := make([]byte, 0, len(topicPrefix)+len(topic))
	k = append(k, topicPrefix...)
	k = append(k, topic...)
	return k
}

// KeyEntry builds a message key with big-endian timestamp and sequence so
// the keyspace sorts in publication order.
func KeyEntry(ts int64, seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+16)
	k = append(k, entryPrefix...)
	k = appendBE8(k, uint64(ts))
	k = appendBE8(k, seq)
	return k
}

// EntryBounds returns the [low, high) iterator bounds covering all entries.
func EntryBounds() (low, high []byte) {
	low = append([]byte{}, entryPrefix...)
	return low, prefixSuccessor(entryPrefix)
}

// TopicBounds returns the [low, high) iterator bounds covering the registry.
func TopicBounds() (low, high []byte) {
	low = append([]byte{}, topicPrefix...)
	return low, prefixSuccessor(topicPrefix)
}

// prefixSuccessor returns the smallest key greater than every key that
// starts with prefix, so [prefix, successor) covers the whole prefix range
// regardless of what bytes follow it.
func prefixSuccessor(prefix []byte) []byte {
	out := append([]byte{}, prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// ParseEntryKey extracts timestamp and sequence from an entry key.
func ParseEntryKey(k []byte) (ts int64, seq uint64, ok bool) {
	if len(k) != len(entryPrefix)+16 {
		return 0, 0, false
	}
	ts = int64(binary.BigEndian.Uint64(k[len(entryPrefix):]))
	seq = binary.BigEndian.Uint64(k[len(entryPrefix)+8:])
	return ts, seq, true
}

// TopicFromKey extracts the topic name from a registry key.
func TopicFromKey(k []byte) string {
	if len(k) <= len(topicPrefix) {
		return ""
	}
	return string(k[len(topicPrefix):])
}
