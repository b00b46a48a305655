package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"krx-collector/internal/storage"
)

// AdvisoryLock implements storage.RunLock using Postgres advisory locks.
// A session-level lock must be released on the connection that took it, so
// the held connection is pinned out of the pool for the lock's lifetime.
type AdvisoryLock struct {
	pool *Pool

	mu    sync.Mutex
	conns map[string]*pgxpool.Conn
}

// NewAdvisoryLock creates a new AdvisoryLock.
func NewAdvisoryLock(pool *Pool) *AdvisoryLock {
	return &AdvisoryLock{
		pool:  pool,
		conns: make(map[string]*pgxpool.Conn),
	}
}

// Compile-time interface check.
var _ storage.RunLock = (*AdvisoryLock)(nil)

// TryAcquire attempts to take the named lock without blocking.
func (l *AdvisoryLock) TryAcquire(ctx context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.conns[name]; held {
		return false, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection for lock %q: %w", name, err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock %q: %w", name, err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conns[name] = conn
	return true, nil
}

// Release releases the named lock and returns its connection to the pool.
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	conn, held := l.conns[name]
	delete(l.conns, name)
	l.mu.Unlock()

	if !held {
		return nil
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
		return fmt.Errorf("release advisory lock %q: %w", name, err)
	}
	return nil
}
