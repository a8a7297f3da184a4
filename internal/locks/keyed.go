// Package locks provides a striped mutex table for serializing operations
// keyed by principal or client identifier without a single global lock.
package locks

import (
	"hash/fnv"
	"sync"
)

const stripeCount = 64

// Keyed is a fixed table of mutexes; every key hashes onto one stripe.
// Distinct keys may share a stripe, which costs contention but never
// correctness. The zero value is not usable; call NewKeyed.
type Keyed struct {
	stripes [stripeCount]sync.Mutex
}

// NewKeyed returns an empty striped lock table.
func NewKeyed() *Keyed {
	return &Keyed{}
}

func (k *Keyed) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.stripes[h.Sum32()%stripeCount]
}

// Lock acquires the stripe for key.
func (k *Keyed) Lock(key string) {
	k.stripe(key).Lock()
}

// Unlock releases the stripe for key.
func (k *Keyed) Unlock(key string) {
	k.stripe(key).Unlock()
}

// WithLock runs fn while holding the stripe for key.
func (k *Keyed) WithLock(key string, fn func() error) error {
	m := k.stripe(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
