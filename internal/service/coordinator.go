// Package service holds the match-room lifecycle logic: it turns
// match-start/leave/end signals from untrusted, unsynchronized game clients
// into exactly-one provisioned channel set per match, and tears everything
// down again when the match is over.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Frenky19/RiftTalk/internal/idgen"
	"github.com/Frenky19/RiftTalk/internal/kv"
	"github.com/Frenky19/RiftTalk/internal/models"
	"github.com/Frenky19/RiftTalk/internal/provision"
	"github.com/Frenky19/RiftTalk/internal/repo"
)

const matchIDPrefix = "match_"

// Options carries the coordinator's timing knobs.
type Options struct {
	RoomTTL      time.Duration // lifetime of a room record
	UserMatchTTL time.Duration // lifetime of per-player pointers
	DebounceTTL  time.Duration // per-(match,player) duplicate-start window
	CreateTTL    time.Duration // room-creation lock lease
	LeaveGrace   time.Duration // expiry cap applied on early leave

	// How long a creation-lock loser polls for the winner's room.
	CreatePollRetries  int
	CreatePollInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		RoomTTL:            time.Hour,
		UserMatchTTL:       time.Hour,
		DebounceTTL:        10 * time.Second,
		CreateTTL:          30 * time.Second,
		LeaveGrace:         15 * time.Minute,
		CreatePollRetries:  10,
		CreatePollInterval: 100 * time.Millisecond,
	}
}

// Coordinator owns the match-room lifecycle. It holds no mutable state
// between calls; everything shared lives in the key/value store, guarded by
// short lock leases for the one non-idempotent step (provisioning).
type Coordinator struct {
	lock  *kv.Lock
	rooms repo.RoomStore
	ids   repo.IdentityResolver
	prov  provision.Provisioner
	opts  Options
}

func NewCoordinator(lock *kv.Lock, rooms repo.RoomStore, ids repo.IdentityResolver, prov provision.Provisioner, opts Options) *Coordinator {
	return &Coordinator{lock: lock, rooms: rooms, ids: ids, prov: prov, opts: opts}
}

func debounceLockKey(matchID, playerID string) string {
	return fmt.Sprintf("lock:matchstart:%s:%s", matchID, playerID)
}

func createLockKey(matchID string) string {
	return fmt.Sprintf("lock:roomcreate:%s", matchID)
}

func validateMatchID(matchID string) error {
	if matchID == "" || !strings.HasPrefix(matchID, matchIDPrefix) {
		return ErrInvalidMatchID
	}
	return nil
}

// teamNameFor resolves the reporter's side from the provided rosters.
// No match means the team is unknown; the signal is still processed.
func teamNameFor(playerID string, blue, red []string) string {
	for _, p := range blue {
		if strings.TrimSpace(p) == playerID {
			return models.TeamBlue
		}
	}
	for _, p := range red {
		if strings.TrimSpace(p) == playerID {
			return models.TeamRed
		}
	}
	return ""
}

func normalizeIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ReportMatchStart processes one match-start signal. For a single match,
// only one caller ever performs the provisioning side effects; everyone
// else observes the created room or gets a debounced read-only view.
func (c *Coordinator) ReportMatchStart(ctx context.Context, in models.MatchStartInput) (models.MatchStartResult, error) {
	if err := validateMatchID(in.MatchID); err != nil {
		return models.MatchStartResult{}, err
	}
	if strings.TrimSpace(in.PlayerID) == "" {
		return models.MatchStartResult{}, ErrMissingPlayerID
	}
	playerID := strings.TrimSpace(in.PlayerID)
	blue := normalizeIDs(in.BlueTeam)
	red := normalizeIDs(in.RedTeam)
	teamName := teamNameFor(playerID, blue, red)

	// Debounce: a polling client re-reporting within the window gets the
	// current view without any provisioning or assignment side effects.
	got, err := c.lock.TryAcquire(ctx, debounceLockKey(in.MatchID, playerID), c.opts.DebounceTTL)
	if err != nil {
		return models.MatchStartResult{}, err
	}
	if !got {
		return c.debouncedView(ctx, in.MatchID, playerID, teamName)
	}

	// Room creation is the one sequence that is not idempotent against
	// races, so it runs under a per-match lock. Losers wait briefly for
	// the winner's room and then proceed with whatever is visible.
	gotCreate, err := c.lock.TryAcquire(ctx, createLockKey(in.MatchID), c.opts.CreateTTL)
	if err != nil {
		return models.MatchStartResult{}, err
	}
	if gotCreate {
		room, ok, err := c.rooms.GetRoomByMatch(ctx, in.MatchID)
		if err != nil {
			return models.MatchStartResult{}, err
		}
		if !ok {
			if room, err = c.createRoom(ctx, in.MatchID, blue, red); err != nil {
				return models.MatchStartResult{}, err
			}
			log.Info().Str("match_id", in.MatchID).Str("room_id", room.RoomID).Msg("voice room created")
		}
	} else {
		c.waitForRoom(ctx, in.MatchID)
	}

	room, ok, err := c.rooms.GetRoomByMatch(ctx, in.MatchID)
	if err != nil {
		return models.MatchStartResult{}, err
	}
	if !ok {
		// Someone else is presumably still creating it; report what we see.
		return models.MatchStartResult{MatchID: in.MatchID, TeamName: teamName}, nil
	}

	// Reconcile rosters (add-only; never flips an existing member) and make
	// sure the reporter is tracked.
	if _, _, err := c.rooms.UpdateTeams(ctx, room.RoomID, blue, red); err != nil {
		log.Warn().Err(err).Str("room_id", room.RoomID).Msg("team reconcile failed")
	}
	if err := c.rooms.AddPlayer(ctx, room.RoomID, playerID); err != nil {
		log.Warn().Err(err).Str("room_id", room.RoomID).Msg("add player failed")
	}
	if err := c.rooms.SaveUserMatch(ctx, playerID, models.UserMatch{
		MatchID:  in.MatchID,
		RoomID:   room.RoomID,
		TeamName: teamName,
		JoinedAt: time.Now().UTC(),
	}, c.opts.UserMatchTTL); err != nil {
		log.Warn().Err(err).Str("player_id", playerID).Msg("save user match failed")
	}

	// Re-read so the response reflects the reconciled state. The stored
	// side wins over the payload-derived one: a player already granted
	// access on one team must never be handed the other team's channel
	// because a later report listed them on the wrong side.
	if refreshed, ok, err := c.rooms.GetRoom(ctx, room.RoomID); err == nil && ok {
		room = refreshed
	}
	if stored := room.OnTeam(playerID); stored != "" {
		teamName = stored
	}

	result := models.MatchStartResult{
		MatchID:    in.MatchID,
		RoomID:     room.RoomID,
		RoomExists: true,
		TeamName:   teamName,
		Channel:    room.TeamChannelFor(teamName),
	}

	identity, linked, err := c.ids.Resolve(ctx, playerID)
	if err != nil {
		return models.MatchStartResult{}, err
	}
	result.Linked = linked
	if linked && teamName != "" {
		assigned, err := c.prov.AssignRole(ctx, identity, in.MatchID, teamName)
		if err != nil {
			// Assignment failures are surfaced, never fatal.
			log.Warn().Err(err).Str("identity", identity).Str("match_id", in.MatchID).Msg("role assignment failed")
		}
		result.Assigned = assigned
		if _, err := c.prov.MoveIfConnected(ctx, identity, in.MatchID, teamName); err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("move to team channel failed")
		}
	}
	return result, nil
}

// debouncedView answers a suppressed duplicate start with the current room
// state. Read-only: no provisioning, no role assignment.
func (c *Coordinator) debouncedView(ctx context.Context, matchID, playerID, teamName string) (models.MatchStartResult, error) {
	result := models.MatchStartResult{MatchID: matchID, TeamName: teamName, Debounced: true}
	room, ok, err := c.rooms.GetRoomByMatch(ctx, matchID)
	if err != nil {
		return models.MatchStartResult{}, err
	}
	if ok {
		result.RoomID = room.RoomID
		result.RoomExists = true
		if stored := room.OnTeam(playerID); stored != "" {
			result.TeamName = stored
		}
		result.Channel = room.TeamChannelFor(result.TeamName)
	}
	if _, linked, err := c.ids.Resolve(ctx, playerID); err == nil {
		result.Linked = linked
	}
	return result, nil
}

// createRoom provisions both team channels and persists the room record.
// All or nothing from the caller's view: if provisioning fails, no record
// is written, so nothing points at channels that do not exist.
func (c *Coordinator) createRoom(ctx context.Context, matchID string, blue, red []string) (models.Room, error) {
	if len(blue) == 0 && len(red) == 0 {
		return models.Room{}, ErrTeamDataMissing
	}

	suffix, err := idgen.NewSuffix(8)
	if err != nil {
		return models.Room{}, err
	}
	roomID := fmt.Sprintf("voice_%s_%s", matchID, suffix)

	blueCh, err := c.prov.CreateOrGetTeamChannel(ctx, matchID, models.TeamBlue)
	if err != nil {
		return models.Room{}, fmt.Errorf("provision blue channel: %w", err)
	}
	redCh, err := c.prov.CreateOrGetTeamChannel(ctx, matchID, models.TeamRed)
	if err != nil {
		return models.Room{}, fmt.Errorf("provision red channel: %w", err)
	}

	now := time.Now().UTC()
	room := models.Room{
		RoomID:    roomID,
		MatchID:   matchID,
		Players:   append(append([]string{}, blue...), red...),
		BlueTeam:  blue,
		RedTeam:   red,
		Channels:  models.MatchChannels{Blue: blueCh, Red: redCh},
		CreatedAt: now,
		ExpiresAt: now.Add(c.opts.RoomTTL),
		IsActive:  true,
	}
	if err := c.rooms.CreateRoom(ctx, room, c.opts.RoomTTL); err != nil {
		return models.Room{}, err
	}

	for _, playerID := range room.Players {
		if err := c.rooms.SaveUserMatch(ctx, playerID, models.UserMatch{
			MatchID:  matchID,
			RoomID:   roomID,
			JoinedAt: now,
		}, c.opts.UserMatchTTL); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("save user match failed")
		}
	}
	return room, nil
}

// waitForRoom polls for the concurrent creator's result. Bounded; giving up
// is graceful ("someone else is creating it").
func (c *Coordinator) waitForRoom(ctx context.Context, matchID string) {
	for i := 0; i < c.opts.CreatePollRetries; i++ {
		if _, ok, err := c.rooms.GetRoomByMatch(ctx, matchID); err == nil && ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.CreatePollInterval):
		}
	}
}

// ReportMatchLeave removes a player from their match. Best-effort and
// naturally idempotent: leaving an already-gone room is a no-op. When the
// last active player is gone the whole room is torn down immediately.
func (c *Coordinator) ReportMatchLeave(ctx context.Context, matchID, playerID string) error {
	if err := validateMatchID(matchID); err != nil {
		return err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return ErrMissingPlayerID
	}

	// Clear pointers first so nothing can auto-move the player back.
	if err := c.rooms.ClearUserMatch(ctx, playerID); err != nil {
		log.Warn().Err(err).Str("player_id", playerID).Msg("clear user match failed")
	}

	room, ok, err := c.rooms.GetRoomByMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	teamName := room.OnTeam(playerID)

	if err := c.rooms.RemovePlayer(ctx, room.RoomID, playerID); err != nil {
		log.Warn().Err(err).Str("room_id", room.RoomID).Msg("remove player failed")
	}
	// Cap the room's lifetime as a safety net; the deadline only ever
	// shortens the existing expiry.
	if err := c.rooms.MarkClosing(ctx, room.RoomID, "early_leave", time.Now().UTC().Add(c.opts.LeaveGrace)); err != nil {
		log.Warn().Err(err).Str("room_id", room.RoomID).Msg("mark closing failed")
	}

	if identity, linked, err := c.ids.Resolve(ctx, playerID); err == nil && linked {
		if _, err := c.prov.RemoveFromMatch(ctx, identity, matchID, teamName); err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("remove from match failed")
		}
	}

	// If nobody is left with a role or channel presence, tear down now
	// instead of waiting for the reclaimer. Unknown liveness means keep.
	active, err := c.prov.HasActiveParticipants(ctx, matchID)
	if err == nil && !active {
		log.Info().Str("match_id", matchID).Msg("no active players remain, closing room")
		return c.EndMatch(ctx, matchID)
	}
	return nil
}

// EndMatch is the single teardown path, shared by explicit match-end
// signals, last-player-leave and the orphan reclaimer. It always succeeds
// from the caller's perspective: a stuck room must never block a close, so
// remote cleanup failures are logged and swallowed while the local record
// is deleted regardless.
func (c *Coordinator) EndMatch(ctx context.Context, matchID string) error {
	if err := validateMatchID(matchID); err != nil {
		return err
	}
	if err := c.prov.DeleteMatchResources(ctx, matchID); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("provisioner cleanup failed, continuing")
	}
	deleted, err := c.rooms.DeleteRoomByMatch(ctx, matchID)
	if err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("room record delete failed")
		return nil
	}
	if deleted {
		log.Info().Str("match_id", matchID).Msg("voice room deleted")
	}
	return nil
}
