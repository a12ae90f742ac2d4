// Package player orchestrates timed playback: a background loader fills the
// read-ahead queue from the merged bag sources while the delivery loop
// releases each message to the sink when the virtual clock reaches its
// recorded timestamp. Control operations (pause, resume, rate, seek, step)
// may arrive concurrently from other goroutines.
//
// Coordination follows three disciplines: the reader handle is guarded by
// one mutex shared by the loader and seek; delivery-vs-control handover goes
// through a skip flag taken under the delivery lock plus an atomic
// wait-cancel token; and the clock has its own synchronization so pause,
// resume, and rate changes never contend with reader or queue locks.
package player
