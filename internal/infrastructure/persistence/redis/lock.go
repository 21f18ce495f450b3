package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// lockStore is the subset of Cache used by Locker.
type lockStore interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) error
}

// Locker hands out named locks with a random owner token, so one process
// never releases a lock that expired and was taken by another.
type Locker struct {
	store lockStore
}

// NewLocker creates a Locker.
func NewLocker(store lockStore) *Locker {
	return &Locker{store: store}
}

// TryLock attempts to take the lock for ttl without waiting.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		ttl = TTLBatchLock
	}

	key := LockKey(name)
	token := uuid.NewString()

	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	return func(ctx context.Context) error {
		return l.store.CompareAndDelete(ctx, key, token)
	}, true, nil
}
