package engine

import "sync/atomic"

// Lock is an advisory flag shared by concurrently running sessions. It
// never blocks and grants no exclusion; callers decide what it guards.
// The zero value is locked.
type Lock struct {
	unlocked atomic.Bool
}

// NewLock returns a locked Lock.
func NewLock() *Lock {
	return new(Lock)
}

// Lock sets the flag.
func (l *Lock) Lock() {
	l.unlocked.Store(false)
}

// Unlock clears the flag.
func (l *Lock) Unlock() {
	l.unlocked.Store(true)
}

// Locked reports whether the flag is set.
func (l *Lock) Locked() bool {
	return !l.unlocked.Load()
}
