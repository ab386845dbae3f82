// Package models defines the data structures shared across the application.
package models

import "time"

// Team side names as reported to players and used in channel/role naming.
const (
	TeamBlue = "Blue Team"
	TeamRed  = "Red Team"
)

// Room is the voice-chat session record associated with one match.
type Room struct {
	RoomID   string   `json:"roomId"`
	MatchID  string   `json:"matchId"`
	Players  []string `json:"players"`
	BlueTeam []string `json:"blueTeam"`
	RedTeam  []string `json:"redTeam"`

	// Channels references the externally provisioned channel/role set,
	// one per team side.
	Channels MatchChannels `json:"channels"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`

	// ClosingRequestedAt marks the room as a cleanup candidate after an
	// early leave; zero when no close has been requested.
	ClosingRequestedAt time.Time `json:"closingRequestedAt,omitempty"`
	ClosingReason      string    `json:"closingReason,omitempty"`
}

// OnTeam reports which team side a player was stored on, or "" if none.
func (r Room) OnTeam(playerID string) string {
	for _, p := range r.BlueTeam {
		if p == playerID {
			return TeamBlue
		}
	}
	for _, p := range r.RedTeam {
		if p == playerID {
			return TeamRed
		}
	}
	return ""
}

// TeamChannelFor returns the provisioned channel for a team side, if any.
func (r Room) TeamChannelFor(teamName string) *TeamChannel {
	switch teamName {
	case TeamBlue:
		if r.Channels.Blue.ChannelID != "" {
			ch := r.Channels.Blue
			return &ch
		}
	case TeamRed:
		if r.Channels.Red.ChannelID != "" {
			ch := r.Channels.Red
			return &ch
		}
	}
	return nil
}

// TeamChannel is an opaque reference to one externally created
// channel + access role.
type TeamChannel struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	InviteURL   string `json:"inviteUrl"`
	RoleID      string `json:"roleId"`
	TeamName    string `json:"teamName"`
}

// MatchChannels holds the per-side channel references for a room.
type MatchChannels struct {
	Blue TeamChannel `json:"blue"`
	Red  TeamChannel `json:"red"`
}

// UserMatch is the per-player pointer to their current match/room.
type UserMatch struct {
	MatchID  string    `json:"matchId"`
	RoomID   string    `json:"roomId"`
	TeamName string    `json:"teamName,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// MatchStartInput carries one match-start signal from a game client.
type MatchStartInput struct {
	MatchID    string
	PlayerID   string
	PlayerName string
	BlueTeam   []string
	RedTeam    []string
}

// MatchStartResult describes the coordinator's answer to a start signal.
type MatchStartResult struct {
	MatchID    string       `json:"matchId"`
	RoomID     string       `json:"roomId,omitempty"`
	RoomExists bool         `json:"roomExists"`
	TeamName   string       `json:"teamName,omitempty"`
	Channel    *TeamChannel `json:"channel,omitempty"`
	Linked     bool         `json:"linked"`
	Assigned   bool         `json:"assigned"`
	Debounced  bool         `json:"debounced"`
}
