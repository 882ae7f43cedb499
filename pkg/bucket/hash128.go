package bucket

// Hash128 is an opaque 128-bit hash value. The library never computes
// one; every operation takes a Hash128 the caller already derived from
// its key. The zero value is reserved to mean "this bucket slot has
// never been claimed" — callers must never pass it as a real key hash.
type Hash128 struct {
	Hi uint64
	Lo uint64
}

// IsZero reports whether h is the reserved empty-slot sentinel.
func (h Hash128) IsZero() bool {
	return h.Hi == 0 && h.Lo == 0
}

// Equal reports whether h and o are the same 128-bit value.
func (h Hash128) Equal(o Hash128) bool {
	return h.Hi == o.Hi && h.Lo == o.Lo
}

// index returns h's bucket index in a store of the given size (a power
// of two), using the low bits of the hash.
func (h Hash128) index(mask uint64) uint64 {
	return h.Lo & mask
}
