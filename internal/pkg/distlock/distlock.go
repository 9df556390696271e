package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTimeout is returned by AcquireWait when the lock could not be taken in time.
var ErrTimeout = errors.New("distlock: timed out waiting for lock")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory builds a fresh lock instance for a key. Each holder needs its own
// instance because ownership is tracked per instance.
type Factory func(key string) DistLock

// NewFactory picks the best available backend: Redis when a client is given,
// otherwise PostgreSQL advisory locks, otherwise an in-process lock.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	return func(key string) DistLock {
		return NewLock(redisClient, db, key, ttl)
	}
}

// NewLock creates a distributed lock using the best available backend.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return NewLocalLock(key)
	}
}

// AcquireWait polls Acquire until it succeeds, the timeout elapses or ctx is
// done. Backend errors abort immediately.
func AcquireWait(ctx context.Context, l DistLock, timeout, poll time.Duration) error {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release. The lock is dropped with the session
// if the connection dies.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// Uses pg_try_advisory_lock which returns immediately (non-blocking).
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("distlock: advisory lock already held by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: get connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns the pinned connection.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	return err
}

// =============================================================================
// Local lock (single process, no shared backend configured)
// =============================================================================

var (
	localMu    sync.Mutex
	localSlots = map[string]chan struct{}{}
)

// LocalLock serializes holders of the same key within one process.
type LocalLock struct {
	slot chan struct{}
	held bool
}

// NewLocalLock returns a lock sharing its slot with every other LocalLock of key.
func NewLocalLock(key string) *LocalLock {
	localMu.Lock()
	defer localMu.Unlock()
	slot, ok := localSlots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		localSlots[key] = slot
	}
	return &LocalLock{slot: slot}
}

// Acquire takes the slot if it is free.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	select {
	case l.slot <- struct{}{}:
		l.held = true
		return true, nil
	default:
		return false, nil
	}
}

// Release frees the slot if this instance holds it.
func (l *LocalLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	<-l.slot
	l.held = false
	return nil
}
