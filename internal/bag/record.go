package bag

import (
	"encoding/binary"
	"hash/crc32"
)

// Entry value encoding: varint topicLen | topic | payload | crc32c(topic|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRecord frames a topic name and payload into a single value.
func EncodeRecord(topic string, payload []byte) []byte {
	out := make([]byte, 0, 10+len(topic)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(topic)))
	out = append(out, tmp[:n]...)
	out = append(out, topic...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, []byte(topic))
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

// DecodeRecord parses a framed value. Returns false on truncation or a crc
// mismatch. The returned payload is copied out of the backing buffer.
func DecodeRecord(b []byte) (topic string, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return "", nil, false
	}
	tlen, n := binary.Uvarint(b)
	if n <= 0 || int(n)+int(tlen)+4 > len(b) {
		return "", nil, false
	}
	topicBytes := b[n : n+int(tlen)]
	body := b[n+int(tlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, topicBytes)
	crc = crc32.Update(crc, castagnoli, body)
	if crc != expect {
		return "", nil, false
	}
	return string(topicBytes), append([]byte(nil), body...), true
}
