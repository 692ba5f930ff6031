package service

import "sync"

// tokenLocks hands out one mutex per token id so that redemption of a single
// coupon is serialized in-process. Entries are dropped once no caller holds
// or waits on them, so the map does not grow with the ledger.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[int64]*tokenLock
}

type tokenLock struct {
	mu   sync.Mutex
	refs int
}

func newTokenLocks() *tokenLocks {
	return &tokenLocks{locks: make(map[int64]*tokenLock)}
}

// Acquire blocks until the token's mutex is held and returns the release func.
func (l *tokenLocks) Acquire(tokenID int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[tokenID]
	if !ok {
		entry = &tokenLock{}
		l.locks[tokenID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, tokenID)
		}
		l.mu.Unlock()
	}
}
