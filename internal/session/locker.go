package session

import "sync"

// KeyedLocker serializes work per key: conversations by user id, channel
// post edits by question id. Entries are reference counted and removed once
// nobody holds or waits for them.
type KeyedLocker[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker[K comparable]() *KeyedLocker[K] {
	return &KeyedLocker[K]{locks: make(map[K]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *KeyedLocker[K]) Lock(key K) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Held returns the number of keys currently locked or waited on.
func (k *KeyedLocker[K]) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
