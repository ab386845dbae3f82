// Package provision abstracts the chat platform that hosts the voice
// channels. The coordinator consumes this capability; the real adapter
// talks to an external service, while Mock is a fully functional
// in-process substitute.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/Frenky19/RiftTalk/internal/models"
)

// Provisioner creates and tears down per-team channel/role sets and manages
// participant access. Every operation must be idempotent: create-or-get by
// deterministic name, delete-if-present on teardown.
type Provisioner interface {
	// CreateOrGetTeamChannel returns the single channel+role set for a
	// (match, team) pair, creating it if needed. Concurrently created
	// duplicates are resolved by keeping the oldest set and migrating
	// members of discarded duplicates.
	CreateOrGetTeamChannel(ctx context.Context, matchID, teamName string) (models.TeamChannel, error)

	// AssignRole grants the player's external identity access to their
	// team channel.
	AssignRole(ctx context.Context, identity, matchID, teamName string) (bool, error)

	// MoveIfConnected moves the identity into their team channel if they
	// are currently connected anywhere; it does nothing otherwise.
	MoveIfConnected(ctx context.Context, identity, matchID, teamName string) (bool, error)

	// RemoveFromMatch strips the identity's match access. An empty
	// teamName means the side is unknown and both are stripped. A
	// connected member is moved to a neutral channel when one exists and
	// disconnected otherwise, never left with stale access.
	RemoveFromMatch(ctx context.Context, identity, matchID, teamName string) (bool, error)

	// DeleteMatchResources removes every channel and role for the match.
	// Missing resources are not an error.
	DeleteMatchResources(ctx context.Context, matchID string) error

	// HasActiveParticipants reports whether anyone still holds a match
	// role or sits in a match channel. A non-nil error means liveness
	// could not be determined; callers must not treat that as "false".
	HasActiveParticipants(ctx context.Context, matchID string) (bool, error)

	// ListMatchResources enumerates every provisioned channel set that
	// matches the naming convention, grouped by match. Used by the
	// orphan reclaimer.
	ListMatchResources(ctx context.Context) ([]MatchResources, error)

	// StripStaleRoles removes all members from the match's team roles.
	// Best-effort; used by the reclaimer before re-checking liveness.
	StripStaleRoles(ctx context.Context, matchID string) error
}

// MatchResources summarizes the externally visible state of one match's
// channel set.
type MatchResources struct {
	MatchID          string
	CreatedAt        time.Time
	ConnectedMembers int
	RoleMembers      int
}

// ChannelName is the deterministic name for a (match, team) channel.
// Idempotent creation and orphan discovery both key off it.
func ChannelName(matchID, teamName string) string {
	return fmt.Sprintf("Match %s - %s", matchID, teamName)
}

// RoleName is the deterministic name for a (match, team) access role.
func RoleName(matchID, teamName string) string {
	return fmt.Sprintf("Match %s - %s Role", matchID, teamName)
}
