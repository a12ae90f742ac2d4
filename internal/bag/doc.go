// Package bag implements timestamp-ordered message storage on Pebble.
//
// A bag is a Pebble directory holding opaque messages keyed by publication
// timestamp, a topic registry, and a small meta record (time range, count).
// Writer appends during recording or rewrite; Reader provides the ordered,
// seekable source the playback engine consumes.
package bag
