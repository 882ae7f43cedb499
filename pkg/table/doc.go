// Package table defines the shape every container in this family of
// concurrent associative containers implements: get/put/add/replace/
// remove/len, plus an optional order-preserving snapshot view for the
// variants that support one.
//
// The source this library was distilled from ships many tables sharing
// this shape — a single-threaded reference table, lock-based variants,
// higher-level dictionary/set wrappers — built by composing the same
// EBR, bucket-store, and record-list primitives with different
// concurrency policies layered on top. Those variants are out of scope
// here (see pkg/qtable's doc comment for the one that is implemented),
// but the interface in this package is what lets pkg/epoch and
// pkg/bucket stay reusable across them: a trait/interface expresses the
// shared shape, and each variant composes the shared primitives rather
// than inheriting from a common base, which Go has no construct for
// anyway.
package table
