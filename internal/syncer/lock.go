package syncer

import "sync/atomic"

// runLock is a non-blocking lock guarding a sync run. A second caller is
// refused instead of queued.
type runLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *runLock) Release() {
	l.state.Store(0)
}
