// Package emitter bridges replayed messages to MQTT. MQTTSink publishes
// msgpack envelopes during playback; MQTTSource does the reverse,
// feeding broker traffic onto the in-process bus for recording.
package emitter
