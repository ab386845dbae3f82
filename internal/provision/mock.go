package provision

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Frenky19/RiftTalk/internal/models"
)

const neutralChannelName = "Waiting Room"

// Mock is an in-process Provisioner used when no chat backend is configured
// and by the test suite. It keeps the same observable semantics as a real
// adapter: deterministic naming, idempotent create-or-get, role membership,
// voice presence and neutral-channel moves.
type Mock struct {
	mu        sync.Mutex
	channels  map[string]*mockChannel // keyed by channel name
	roles     map[string]*mockRole    // keyed by role name
	connected map[string]string       // identity -> channel name
	now       func() time.Time
}

type mockChannel struct {
	channel   models.TeamChannel
	matchID   string
	createdAt time.Time
}

type mockRole struct {
	id      string
	members map[string]bool
}

func NewMock() *Mock {
	m := &Mock{
		channels:  make(map[string]*mockChannel),
		roles:     make(map[string]*mockRole),
		connected: make(map[string]string),
		now:       time.Now,
	}
	m.channels[neutralChannelName] = &mockChannel{
		channel:   models.TeamChannel{ChannelID: uuid.NewString(), ChannelName: neutralChannelName},
		createdAt: m.now(),
	}
	return m
}

func (m *Mock) CreateOrGetTeamChannel(_ context.Context, matchID, teamName string) (models.TeamChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ChannelName(matchID, teamName)
	if existing, ok := m.channels[name]; ok {
		return existing.channel, nil
	}

	role := m.getOrCreateRoleLocked(matchID, teamName)
	ch := models.TeamChannel{
		ChannelID:   uuid.NewString(),
		ChannelName: name,
		InviteURL:   "https://chat.invalid/invite/" + uuid.NewString()[:8],
		RoleID:      role.id,
		TeamName:    teamName,
	}
	m.channels[name] = &mockChannel{channel: ch, matchID: matchID, createdAt: m.now()}
	log.Debug().Str("channel", name).Msg("mock provisioner: created team channel")
	return ch, nil
}

func (m *Mock) getOrCreateRoleLocked(matchID, teamName string) *mockRole {
	name := RoleName(matchID, teamName)
	if role, ok := m.roles[name]; ok {
		return role
	}
	role := &mockRole{id: uuid.NewString(), members: make(map[string]bool)}
	m.roles[name] = role
	return role
}

func (m *Mock) AssignRole(_ context.Context, identity, matchID, teamName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[RoleName(matchID, teamName)]
	if !ok {
		return false, nil
	}
	role.members[identity] = true
	return true, nil
}

func (m *Mock) MoveIfConnected(_ context.Context, identity, matchID, teamName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected[identity] == "" {
		return false, nil
	}
	name := ChannelName(matchID, teamName)
	if _, ok := m.channels[name]; !ok {
		return false, nil
	}
	m.connected[identity] = name
	return true, nil
}

func (m *Mock) RemoveFromMatch(_ context.Context, identity, matchID, teamName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	teams := []string{teamName}
	if teamName == "" {
		teams = []string{models.TeamBlue, models.TeamRed}
	}
	for _, team := range teams {
		if role, ok := m.roles[RoleName(matchID, team)]; ok {
			delete(role.members, identity)
		}
	}
	// If they sit in one of the match channels, park them in the neutral one.
	if current := m.connected[identity]; current != "" {
		if ch, ok := m.channels[current]; ok && ch.matchID == matchID {
			m.connected[identity] = neutralChannelName
		}
	}
	return true, nil
}

func (m *Mock) DeleteMatchResources(_ context.Context, matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ch := range m.channels {
		if ch.matchID != matchID {
			continue
		}
		for identity, loc := range m.connected {
			if loc == name {
				m.connected[identity] = neutralChannelName
			}
		}
		delete(m.channels, name)
	}
	for name := range m.roles {
		if strings.HasPrefix(name, "Match "+matchID+" - ") {
			delete(m.roles, name)
		}
	}
	return nil
}

func (m *Mock) HasActiveParticipants(_ context.Context, matchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, team := range []string{models.TeamBlue, models.TeamRed} {
		if role, ok := m.roles[RoleName(matchID, team)]; ok && len(role.members) > 0 {
			return true, nil
		}
	}
	for _, loc := range m.connected {
		if ch, ok := m.channels[loc]; ok && ch.matchID == matchID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Mock) ListMatchResources(_ context.Context) ([]MatchResources, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byMatch := make(map[string]*MatchResources)
	for name, ch := range m.channels {
		if ch.matchID == "" {
			continue
		}
		res, ok := byMatch[ch.matchID]
		if !ok {
			res = &MatchResources{MatchID: ch.matchID, CreatedAt: ch.createdAt}
			byMatch[ch.matchID] = res
		}
		if ch.createdAt.Before(res.CreatedAt) {
			res.CreatedAt = ch.createdAt
		}
		for _, loc := range m.connected {
			if loc == name {
				res.ConnectedMembers++
			}
		}
	}
	for _, res := range byMatch {
		for _, team := range []string{models.TeamBlue, models.TeamRed} {
			if role, ok := m.roles[RoleName(res.MatchID, team)]; ok {
				res.RoleMembers += len(role.members)
			}
		}
	}
	out := make([]MatchResources, 0, len(byMatch))
	for _, res := range byMatch {
		out = append(out, *res)
	}
	return out, nil
}

func (m *Mock) StripStaleRoles(_ context.Context, matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, team := range []string{models.TeamBlue, models.TeamRed} {
		if role, ok := m.roles[RoleName(matchID, team)]; ok {
			role.members = make(map[string]bool)
		}
	}
	return nil
}

// Connect simulates an identity joining voice in the neutral channel.
func (m *Mock) Connect(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[identity] = neutralChannelName
}

// ConnectedChannel reports which channel an identity currently sits in.
func (m *Mock) ConnectedChannel(identity string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected[identity]
}

var _ Provisioner = (*Mock)(nil)
