package memory

import (
	"context"
	"sync"

	"krx-collector/internal/storage"
)

// RunLock is an in-memory implementation of storage.RunLock.
type RunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewRunLock creates a new in-memory run lock.
func NewRunLock() *RunLock {
	return &RunLock{held: make(map[string]bool)}
}

// Compile-time interface check.
var _ storage.RunLock = (*RunLock)(nil)

// TryAcquire attempts to take the named lock without blocking.
func (l *RunLock) TryAcquire(_ context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return false, nil
	}
	l.held[name] = true
	return true, nil
}

// Release releases the named lock.
func (l *RunLock) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, name)
	return nil
}
