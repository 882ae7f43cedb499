package bucket

import "sync/atomic"

// Bucket is one slot in a Store's array: a hash value that is filled
// exactly once via CAS, and the head of that hash's record-history
// stack, which is mutated only by CAS on the observed current head.
type Bucket struct {
	hash atomic.Pointer[Hash128]
	head atomic.Pointer[Record]
}

// Hash returns the bucket's claimed hash, or the zero value and false
// if the bucket has never been claimed.
func (b *Bucket) Hash() (Hash128, bool) {
	p := b.hash.Load()
	if p == nil {
		return Hash128{}, false
	}
	return *p, true
}

// ClaimHash attempts to install h as this bucket's hash via CAS from
// "unclaimed" (nil). Returns true if this call won the claim, false if
// the bucket was already claimed (by h or by a different hash — the
// caller must check Hash() to tell which).
func (b *Bucket) ClaimHash(h Hash128) bool {
	return b.hash.CompareAndSwap(nil, &h)
}

// Head returns the current top of the record-history stack, or nil if
// nothing has ever been installed.
func (b *Bucket) Head() *Record {
	return b.head.Load()
}

// CASHead attempts to push newHead onto the stack by swapping it in for
// old. Returns false if another writer already changed the head.
func (b *Bucket) CASHead(old, newHead *Record) bool {
	return b.head.CompareAndSwap(old, newHead)
}
