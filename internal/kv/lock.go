package kv

import (
	"context"
	"time"

	"github.com/Frenky19/RiftTalk/internal/idgen"
)

// Lock provides short-lived mutual-exclusion leases on top of the store's
// atomic set-if-absent. There is no renewal and no queueing: leases expire
// on their own and callers re-acquire per operation.
type Lock struct{ store Store }

func NewLock(s Store) *Lock { return &Lock{store: s} }

// TryAcquire attempts to take the lease for key. It returns false when the
// lease is already held; an error means the state could not be determined.
func (l *Lock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.store.SetIfAbsentWithExpiry(ctx, key, idgen.NewULID(), ttl)
}

// Release drops the lease early. Leases also vanish on TTL expiry, so
// releasing is optional.
func (l *Lock) Release(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}
