// Package bucket implements the bucket store and per-bucket record list
// that the qtable operation layer is built on: a power-of-two array of
// bucket headers (hash + record-list head), each bucket's history of
// immutable modification records, and the used/tombstone counters and
// migration-target pointer a Store carries.
//
// Nothing in this package hashes anything — every operation takes a
// Hash128 the caller already computed.
package bucket
