package proxy

import (
	"slices"
	"sync/atomic"
)

// Rotator hands out descriptors round-robin. The pool is fixed at
// construction and the cursor is shared by every caller, so concurrent
// sessions spread across the pool. The zero value is an empty rotator.
type Rotator struct {
	pool   []Descriptor
	cursor atomic.Uint64
}

// NewRotator creates a Rotator over a copy of pool.
func NewRotator(pool []Descriptor) *Rotator {
	return &Rotator{pool: slices.Clone(pool)}
}

// Next returns the next descriptor. It returns false when the pool is
// empty, which means the caller should connect directly.
func (r *Rotator) Next() (Descriptor, bool) {
	if r == nil || len(r.pool) == 0 {
		return Descriptor{}, false
	}
	n := r.cursor.Add(1) - 1
	return r.pool[n%uint64(len(r.pool))], true
}

// Len returns the pool size.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.pool)
}

// Pool returns a copy of the pool.
func (r *Rotator) Pool() []Descriptor {
	if r == nil {
		return []Descriptor{}
	}
	return slices.Clone(r.pool)
}
