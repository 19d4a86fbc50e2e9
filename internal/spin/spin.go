// Package spin provides the single-word spin lock used by the allocators.
//
// At this layer there is no scheduler to sleep on: operations are synchronous
// and run-to-completion, so mutual exclusion comes from a test-and-set loop
// with an acquire/release memory ordering supplied by sync/atomic. After a
// bounded number of failed attempts the spinner yields the execution unit to
// cut contention while waiting.
package spin

import (
	"runtime"
	"sync/atomic"
)

// activeSpinCount is how many CAS attempts are made before each yield.
const activeSpinCount = 64

// Lock is a single-word spin lock. The zero value is unlocked.
//
// Lock holders must not call back into code that can take the same lock;
// there is no deadlock detection, and a stuck holder is unrecoverable.
type Lock struct {
	locked uint32
}

// Acquire spins until the lock is held by the caller.
func (l *Lock) Acquire() {
	for {
		for i := 0; i < activeSpinCount; i++ {
			if atomic.CompareAndSwapUint32(&l.locked, 0, 1) {
				return
			}
		}
		runtime.Gosched()
	}
}

// TryAcquire makes one bounded attempt to take the lock and reports
// whether it succeeded. Used by no-block allocation paths that must fail
// rather than wait.
func (l *Lock) TryAcquire() bool {
	for i := 0; i < activeSpinCount; i++ {
		if atomic.CompareAndSwapUint32(&l.locked, 0, 1) {
			return true
		}
	}
	return false
}

// Release unlocks the lock with a release-ordered store.
func (l *Lock) Release() {
	atomic.StoreUint32(&l.locked, 0)
}

// Held reports whether the lock is currently held by someone.
// Diagnostic only; the answer can be stale by the time it returns.
func (l *Lock) Held() bool {
	return atomic.LoadUint32(&l.locked) != 0
}
