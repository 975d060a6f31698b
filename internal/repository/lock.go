package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"boothbook/internal/domain"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ErrLockLost is returned by Lock.Check once the lock expired or another
// holder took it over.
var ErrLockLost = errors.New("lock no longer held")

const lockPrefix = "lock:"

// Locker implements short-lived mutual exclusion on top of the store's
// conditional write. Each holder owns a random token, and release only
// deletes the key while the token still matches.
type Locker struct {
	store   domain.Store
	ttl     time.Duration
	timeout time.Duration
	poll    time.Duration
}

func NewLocker(store domain.Store, ttl, timeout time.Duration) *Locker {
	return &Locker{
		store:   store,
		ttl:     ttl,
		timeout: timeout,
		poll:    25 * time.Millisecond,
	}
}

// TTL is how long an acquired lock lives without being released.
func (l *Locker) TTL() time.Duration { return l.ttl }

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	locker *Locker
	key    string
	token  []byte
}

// Acquire blocks until the named resource is locked, the timeout passes, or
// ctx is cancelled.
func (l *Locker) Acquire(ctx context.Context, resource string) (*Lock, error) {
	key := lockPrefix + resource
	token := []byte(uuid.NewString())

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()

	for {
		ok, err := l.store.PutIfAbsent(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", resource, err)
		}
		if ok {
			return &Lock{locker: l, key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, resource)
		case <-time.After(l.poll):
		}
	}
}

// Release frees the lock if it is still held by this holder.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.token == nil {
		return nil
	}
	_, err := lk.locker.store.DeleteIfValue(ctx, lk.key, lk.token)
	lk.token = nil
	if err != nil {
		return fmt.Errorf("release %s: %w", lk.key, err)
	}
	return nil
}

// Check returns ErrLockLost unless the lock key still carries this holder's
// token.
func (lk *Lock) Check(ctx context.Context) error {
	if lk == nil || lk.token == nil {
		return ErrLockLost
	}
	current, err := lk.locker.store.Get(ctx, lk.key)
	if err != nil {
		return fmt.Errorf("check %s: %w", lk.key, err)
	}
	if !bytes.Equal(current, lk.token) {
		return fmt.Errorf("%w: %s", ErrLockLost, lk.key)
	}
	return nil
}

// WithLock runs fn while holding the lock on resource.
func (l *Locker) WithLock(ctx context.Context, resource string, fn func() error) error {
	lk, err := l.Acquire(ctx, resource)
	if err != nil {
		return err
	}
	defer func() {
		// release even when the request context is already cancelled
		_ = lk.Release(context.WithoutCancel(ctx))
	}()
	return fn()
}
