package repo

import (
	"context"

	"github.com/Frenky19/RiftTalk/internal/kv"
)

// KVIdentityResolver looks up a player's linked chat identity from the
// user:{player_id} hash written by the account-linking flow. This side of
// the system only ever reads it; a player without a link simply cannot be
// granted channel access.
type KVIdentityResolver struct{ store kv.Store }

func NewKVIdentityResolver(s kv.Store) *KVIdentityResolver {
	return &KVIdentityResolver{store: s}
}

func (r *KVIdentityResolver) Resolve(ctx context.Context, playerID string) (string, bool, error) {
	identity, ok, err := r.store.GetHashField(ctx, userKey(playerID), "discord_user_id")
	if err != nil {
		return "", false, err
	}
	if !ok || identity == "" {
		return "", false, nil
	}
	return identity, true, nil
}

var _ IdentityResolver = (*KVIdentityResolver)(nil)
