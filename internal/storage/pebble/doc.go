// Package pebblestore wraps a Pebble database with the durability policy and
// the small helper surface the bag layer needs: point reads and writes,
// atomic batches, and range iterators over the sortable bag keyspace.
package pebblestore
