// Package coordinator serializes writes per logical key, bounds concurrent
// OCR work and absorbs transient store failures with backoff.
package coordinator

import "sync"

// KeyLock hands out one mutex per logical key (userID+shardType for ledger
// mutations, groupID for summary refreshes). Concurrent requests for the
// same key queue; different keys proceed in parallel.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyLock) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Lock acquires the mutex for key and returns its unlock func.
func (k *KeyLock) Lock(key string) func() {
	l := k.lockFor(key)
	l.Lock()
	return l.Unlock
}

// WithLock runs fn while holding the key's mutex. The check-then-act
// sequences around live artifacts and ledger folds run inside this.
func (k *KeyLock) WithLock(key string, fn func() error) error {
	unlock := k.Lock(key)
	defer unlock()
	return fn()
}
