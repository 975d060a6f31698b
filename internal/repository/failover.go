package repository

import (
	"context"
	"sync/atomic"
	"time"

	"boothbook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore routes calls to the primary store and switches to the fallback
// after the first failure. The primary is pinged again once a minute.
type FailoverStore struct {
	primary   domain.Store
	fallback  domain.Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStore(primary, fallback domain.Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Degraded reports whether calls currently go to the fallback store.
func (r *FailoverStore) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStore) shouldRetryPrimary() bool {
	return r.isDown.Load() && r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

// route runs op against the primary while it is healthy and against the
// fallback otherwise.
func route[T any](ctx context.Context, r *FailoverStore, op func(domain.Store) (T, error)) (T, error) {
	if !r.isDown.Load() {
		res, err := op(r.primary)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, err
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		if err := r.primary.Ping(ctx); err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary store recovered")
			return op(r.primary)
		}
		r.lastCheck.Store(r.now().UnixNano())
	}

	return op(r.fallback)
}

func (r *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return route(ctx, r, func(s domain.Store) ([]byte, error) { return s.Get(ctx, key) })
}

func (r *FailoverStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := route(ctx, r, func(s domain.Store) (struct{}, error) { return struct{}{}, s.Put(ctx, key, value, ttl) })
	return err
}

func (r *FailoverStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return route(ctx, r, func(s domain.Store) (bool, error) { return s.PutIfAbsent(ctx, key, value, ttl) })
}

func (r *FailoverStore) Delete(ctx context.Context, key string) error {
	_, err := route(ctx, r, func(s domain.Store) (struct{}, error) { return struct{}{}, s.Delete(ctx, key) })
	return err
}

func (r *FailoverStore) DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	return route(ctx, r, func(s domain.Store) (bool, error) { return s.DeleteIfValue(ctx, key, value) })
}

func (r *FailoverStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return route(ctx, r, func(s domain.Store) ([]string, error) { return s.Keys(ctx, prefix) })
}

// Ping reports the primary's health; the fallback is always reachable.
func (r *FailoverStore) Ping(ctx context.Context) error {
	return r.primary.Ping(ctx)
}
