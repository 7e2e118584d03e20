// Package keylock serializes work per key without a global lock.
package keylock

import (
	"hash/maphash"
	"sync"
)

const stripes = 64

// Striped maps keys onto a fixed set of mutexes. Two keys may share a stripe,
// so a caller must never hold two keys at once.
type Striped struct {
	seed    maphash.Seed
	stripes [stripes]sync.Mutex
}

// New returns a Striped lock with a random seed.
func New() *Striped {
	return &Striped{seed: maphash.MakeSeed()}
}

// Lock blocks until key's stripe is held and returns its release func.
func (s *Striped) Lock(key string) (unlock func()) {
	mu := &s.stripes[maphash.String(s.seed, key)%stripes]
	mu.Lock()
	return mu.Unlock
}
