package cache

import (
	"context"
	"errors"
	"time"
)

// Layered reads through a fast local layer into a shared remote one. Writes go
// to both; a remote hit is backfilled into the local layer with the backfill
// TTL so replicas converge without hammering the remote store.
type Layered struct {
	local       Service
	remote      Service
	backfillTTL time.Duration
}

// NewLayered composes local and remote caches.
func NewLayered(local, remote Service, backfillTTL time.Duration) *Layered {
	if backfillTTL <= 0 {
		backfillTTL = time.Minute
	}
	return &Layered{local: local, remote: remote, backfillTTL: backfillTTL}
}

func (l *Layered) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := l.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return l.remote.Set(ctx, key, value, ttl)
}

func (l *Layered) Get(ctx context.Context, key string, dest interface{}) error {
	if err := l.local.Get(ctx, key, dest); err == nil {
		return nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	if err := l.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	// Best effort: a local backfill failure must not fail the read.
	_ = l.local.Set(ctx, key, dest, l.backfillTTL)
	return nil
}

func (l *Layered) Delete(ctx context.Context, keys ...string) error {
	localErr := l.local.Delete(ctx, keys...)
	if err := l.remote.Delete(ctx, keys...); err != nil {
		return err
	}
	return localErr
}
