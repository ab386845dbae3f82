package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Frenky19/RiftTalk/internal/kv"
	"github.com/Frenky19/RiftTalk/internal/models"
)

const (
	roomKeyPrefix      = "room:"
	matchRoomKeyPrefix = "match_room:"
	userMatchKeyPrefix = "user_match:"
	userKeyPrefix      = "user:"
)

func roomKey(roomID string) string       { return roomKeyPrefix + roomID }
func matchRoomKey(matchID string) string { return matchRoomKeyPrefix + matchID }
func userMatchKey(playerID string) string {
	return userMatchKeyPrefix + playerID
}
func userKey(playerID string) string { return userKeyPrefix + playerID }

// KVRoomStore implements RoomStore on top of the key/value store. Room
// records live in a hash at room:{room_id}; match_room:{match_id} holds a
// TTL-bound pointer to the room; user_match:{player_id} holds the
// per-player pointer with its own TTL.
type KVRoomStore struct{ store kv.Store }

func NewKVRoomStore(s kv.Store) *KVRoomStore { return &KVRoomStore{store: s} }

func (r *KVRoomStore) CreateRoom(ctx context.Context, room models.Room, ttl time.Duration) error {
	fields, err := encodeRoom(room)
	if err != nil {
		return err
	}
	if err := r.store.SetHash(ctx, roomKey(room.RoomID), fields); err != nil {
		return err
	}
	if err := r.store.Expire(ctx, roomKey(room.RoomID), ttl); err != nil {
		return err
	}
	return r.store.SetWithExpiry(ctx, matchRoomKey(room.MatchID), room.RoomID, ttl)
}

func (r *KVRoomStore) GetRoom(ctx context.Context, roomID string) (models.Room, bool, error) {
	fields, err := r.store.GetHash(ctx, roomKey(roomID))
	if err != nil {
		return models.Room{}, false, err
	}
	if len(fields) == 0 {
		return models.Room{}, false, nil
	}
	return decodeRoom(roomID, fields), true, nil
}

func (r *KVRoomStore) GetRoomByMatch(ctx context.Context, matchID string) (models.Room, bool, error) {
	roomID, ok, err := r.store.Get(ctx, matchRoomKey(matchID))
	if err != nil || !ok {
		return models.Room{}, false, err
	}
	return r.GetRoom(ctx, roomID)
}

func (r *KVRoomStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	keys, err := r.store.ScanKeys(ctx, roomKeyPrefix)
	if err != nil {
		return nil, err
	}
	rooms := make([]models.Room, 0, len(keys))
	for _, key := range keys {
		roomID := strings.TrimPrefix(key, roomKeyPrefix)
		room, ok, err := r.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if ok {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (r *KVRoomStore) UpdateTeams(ctx context.Context, roomID string, blue, red []string) ([]string, []string, error) {
	room, ok, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("room %s not found", roomID)
	}

	mergedBlue, blueChanged := mergeRoster(room.BlueTeam, blue, room.RedTeam)
	mergedRed, redChanged := mergeRoster(room.RedTeam, red, mergedBlue)

	update := map[string]string{}
	if blueChanged {
		update["blue_team"] = encodeJSON(mergedBlue)
	}
	if redChanged {
		update["red_team"] = encodeJSON(mergedRed)
	}
	if len(update) > 0 {
		if err := r.store.SetHash(ctx, roomKey(roomID), update); err != nil {
			return nil, nil, err
		}
	}
	return mergedBlue, mergedRed, nil
}

// mergeRoster adds incoming players to the existing roster unless they are
// already on the other side. Existing members are never moved.
func mergeRoster(existing, incoming, otherSide []string) ([]string, bool) {
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p] = true
	}
	other := make(map[string]bool, len(otherSide))
	for _, p := range otherSide {
		other[p] = true
	}
	merged := append([]string(nil), existing...)
	changed := false
	for _, p := range incoming {
		p = strings.TrimSpace(p)
		if p == "" || have[p] || other[p] {
			continue
		}
		merged = append(merged, p)
		have[p] = true
		changed = true
	}
	return merged, changed
}

func (r *KVRoomStore) AddPlayer(ctx context.Context, roomID, playerID string) error {
	room, ok, err := r.GetRoom(ctx, roomID)
	if err != nil || !ok {
		return err
	}
	for _, p := range room.Players {
		if p == playerID {
			return nil
		}
	}
	players := append(room.Players, playerID)
	return r.store.SetHash(ctx, roomKey(roomID), map[string]string{"players": encodeJSON(players)})
}

func (r *KVRoomStore) RemovePlayer(ctx context.Context, roomID, playerID string) error {
	room, ok, err := r.GetRoom(ctx, roomID)
	if err != nil || !ok {
		return err
	}
	players := make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		if p != playerID {
			players = append(players, p)
		}
	}
	return r.store.SetHash(ctx, roomKey(roomID), map[string]string{"players": encodeJSON(players)})
}

func (r *KVRoomStore) MarkClosing(ctx context.Context, roomID, reason string, deadline time.Time) error {
	room, ok, err := r.GetRoom(ctx, roomID)
	if err != nil || !ok {
		return err
	}
	expires := deadline
	if !room.ExpiresAt.IsZero() && room.ExpiresAt.Before(deadline) {
		expires = room.ExpiresAt
	}
	return r.store.SetHash(ctx, roomKey(roomID), map[string]string{
		"closing_requested_at": time.Now().UTC().Format(time.RFC3339),
		"closing_reason":       reason,
		"expires_at":           expires.UTC().Format(time.RFC3339),
	})
}

func (r *KVRoomStore) DeleteRoomByMatch(ctx context.Context, matchID string) (bool, error) {
	roomID, ok, err := r.store.Get(ctx, matchRoomKey(matchID))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, r.store.Delete(ctx, roomKey(roomID), matchRoomKey(matchID))
}

func (r *KVRoomStore) SaveUserMatch(ctx context.Context, playerID string, info models.UserMatch, ttl time.Duration) error {
	fields := map[string]string{
		"match_id":  info.MatchID,
		"room_id":   info.RoomID,
		"joined_at": info.JoinedAt.UTC().Format(time.RFC3339),
	}
	if info.TeamName != "" {
		fields["team_name"] = info.TeamName
	}
	if err := r.store.SetHash(ctx, userMatchKey(playerID), fields); err != nil {
		return err
	}
	return r.store.Expire(ctx, userMatchKey(playerID), ttl)
}

func (r *KVRoomStore) GetUserMatch(ctx context.Context, playerID string) (models.UserMatch, bool, error) {
	fields, err := r.store.GetHash(ctx, userMatchKey(playerID))
	if err != nil {
		return models.UserMatch{}, false, err
	}
	if len(fields) == 0 {
		return models.UserMatch{}, false, nil
	}
	return models.UserMatch{
		MatchID:  fields["match_id"],
		RoomID:   fields["room_id"],
		TeamName: fields["team_name"],
		JoinedAt: parseTime(fields["joined_at"]),
	}, true, nil
}

// ClearUserMatch drops every per-player pointer so nothing can auto-move
// the player back into the match.
func (r *KVRoomStore) ClearUserMatch(ctx context.Context, playerID string) error {
	if err := r.store.Delete(ctx, userMatchKey(playerID)); err != nil {
		return err
	}
	return r.store.DeleteHashField(ctx, userKey(playerID), "current_match")
}

// --- serialization boundary ---
//
// All room fields are schema-typed here: collections are JSON arrays or
// objects, timestamps are RFC3339, booleans are "true"/"false". Absent or
// unparsable fields decode to their zero value, never to an error.

func encodeRoom(room models.Room) (map[string]string, error) {
	channels, err := json.Marshal(room.Channels)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{
		"room_id":    room.RoomID,
		"match_id":   room.MatchID,
		"players":    encodeJSON(room.Players),
		"blue_team":  encodeJSON(room.BlueTeam),
		"red_team":   encodeJSON(room.RedTeam),
		"channels":   string(channels),
		"created_at": room.CreatedAt.UTC().Format(time.RFC3339),
		"expires_at": room.ExpiresAt.UTC().Format(time.RFC3339),
		"is_active":  fmt.Sprintf("%t", room.IsActive),
	}
	if !room.ClosingRequestedAt.IsZero() {
		fields["closing_requested_at"] = room.ClosingRequestedAt.UTC().Format(time.RFC3339)
		fields["closing_reason"] = room.ClosingReason
	}
	return fields, nil
}

func decodeRoom(roomID string, fields map[string]string) models.Room {
	room := models.Room{
		RoomID:             roomID,
		MatchID:            fields["match_id"],
		Players:            decodeList(fields["players"]),
		BlueTeam:           decodeList(fields["blue_team"]),
		RedTeam:            decodeList(fields["red_team"]),
		CreatedAt:          parseTime(fields["created_at"]),
		ExpiresAt:          parseTime(fields["expires_at"]),
		IsActive:           fields["is_active"] == "true",
		ClosingRequestedAt: parseTime(fields["closing_requested_at"]),
		ClosingReason:      fields["closing_reason"],
	}
	if raw := fields["channels"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &room.Channels)
	}
	return room
}

func encodeJSON(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func decodeList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return []string{}
	}
	return list
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ RoomStore = (*KVRoomStore)(nil)
