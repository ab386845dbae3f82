package repo

import (
	"context"
	"time"

	"github.com/Frenky19/RiftTalk/internal/models"
)

// RoomStore persists match→room and room→metadata records. The system is
// assembled from independently-expiring keys, not transactions: reads must
// tolerate partially-written or missing fields.
type RoomStore interface {
	CreateRoom(ctx context.Context, room models.Room, ttl time.Duration) error
	GetRoom(ctx context.Context, roomID string) (models.Room, bool, error)
	GetRoomByMatch(ctx context.Context, matchID string) (models.Room, bool, error)
	ListRooms(ctx context.Context) ([]models.Room, error)

	// UpdateTeams merges the reported rosters into the stored ones.
	// Add-only: a player already stored on one side is never moved to the
	// other by a later report. Returns the merged rosters.
	UpdateTeams(ctx context.Context, roomID string, blue, red []string) ([]string, []string, error)

	AddPlayer(ctx context.Context, roomID, playerID string) error
	RemovePlayer(ctx context.Context, roomID, playerID string) error

	// MarkClosing records a close request and shortens (never lengthens)
	// the room's expiry to the given deadline.
	MarkClosing(ctx context.Context, roomID, reason string, deadline time.Time) error

	// DeleteRoomByMatch removes the room hash and the match pointer.
	// Deleting an already-gone room is a no-op.
	DeleteRoomByMatch(ctx context.Context, matchID string) (bool, error)

	SaveUserMatch(ctx context.Context, playerID string, info models.UserMatch, ttl time.Duration) error
	GetUserMatch(ctx context.Context, playerID string) (models.UserMatch, bool, error)
	ClearUserMatch(ctx context.Context, playerID string) error
}

// IdentityResolver maps a player identifier to an external chat-platform
// identity. Read-only: an external collaborator owns the writes, and
// absence is a normal state, not an error.
type IdentityResolver interface {
	Resolve(ctx context.Context, playerID string) (identity string, ok bool, err error)
}
