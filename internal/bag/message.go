package bag

// Message is a single recorded publication: an opaque payload captured on a
// topic at a point in time. Timestamps are nanoseconds since a fixed epoch.
// Messages are immutable once produced and shared by reference between the
// merge, queue, and delivery stages.
type Message struct {
	Topic     string
	Timestamp int64
	Payload   []byte
}
