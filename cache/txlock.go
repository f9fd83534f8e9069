package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// owner is transaction holder token. Identity is pointer identity.
type owner struct {
	id uint64
}

// ownerKey is context key of owner token. Keyed by lock, so context
// can own transactions of several caches at once.
type ownerKey struct {
	lock *txLock
}

// txLock is a lock owned by single owner at a time. Unlike sync.Mutex it
// knows its owner, so owner can check that it holds lock and continue
// without blocking itself.
//
// States: unlocked (owner == nil) and locked by owner.
// released is closed on release of current ownership, waking all waiters.
type txLock struct {
	mu       sync.Mutex
	owner    *owner
	released chan struct{}
	lastID   uint64
}

func (l *txLock) newOwner() *owner {
	return &owner{id: atomic.AddUint64(&l.lastID, 1)}
}

// ownerOf returns owner token carried by ctx or nil.
func (l *txLock) ownerOf(ctx context.Context) *owner {
	o, _ := ctx.Value(ownerKey{l}).(*owner)
	return o
}

func (l *txLock) withOwner(ctx context.Context, o *owner) context.Context {
	return context.WithValue(ctx, ownerKey{l}, o)
}

// isOwner reports whether ctx carries current owner token.
// Result can't become stale for owner: only owner can release lock.
func (l *txLock) isOwner(ctx context.Context) bool {
	o := l.ownerOf(ctx)
	if o == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner == o
}

// acquire blocks until lock is acquired by o, or ctx is done.
// No FIFO order between waiters.
func (l *txLock) acquire(ctx context.Context, o *owner) error {
	for {
		l.mu.Lock()
		if l.owner == nil {
			l.lock(o)
			l.mu.Unlock()
			return nil
		}
		released := l.released
		l.mu.Unlock()
		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *txLock) tryAcquire(o *owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != nil {
		return false
	}
	l.lock(o)
	return true
}

// release unlocks lock if it is owned by o, and reports was it.
func (l *txLock) release(o *owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o == nil || l.owner != o {
		return false
	}
	l.owner = nil
	close(l.released)
	l.released = nil
	return true
}

// lock requires mu be acquired.
func (l *txLock) lock(o *owner) {
	l.owner = o
	l.released = make(chan struct{})
}
