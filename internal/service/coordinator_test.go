package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frenky19/RiftTalk/internal/kv"
	"github.com/Frenky19/RiftTalk/internal/models"
	"github.com/Frenky19/RiftTalk/internal/provision"
	"github.com/Frenky19/RiftTalk/internal/repo"
)

type testEnv struct {
	coord *Coordinator
	store *kv.MemoryStore
	rooms *repo.KVRoomStore
	prov  *provision.Mock
}

func newTestEnv() *testEnv {
	store := kv.NewMemoryStore()
	rooms := repo.NewKVRoomStore(store)
	ids := repo.NewKVIdentityResolver(store)
	prov := provision.NewMock()

	opts := DefaultOptions()
	opts.CreatePollInterval = 10 * time.Millisecond

	return &testEnv{
		coord: NewCoordinator(kv.NewLock(store), rooms, ids, prov, opts),
		store: store,
		rooms: rooms,
		prov:  prov,
	}
}

// linkIdentity simulates the account-linking flow for a player.
func (e *testEnv) linkIdentity(t *testing.T, playerID, identity string) {
	t.Helper()
	require.NoError(t, e.store.SetHash(context.Background(), "user:"+playerID,
		map[string]string{"discord_user_id": identity}))
}

func startInput(matchID, playerID string) models.MatchStartInput {
	return models.MatchStartInput{
		MatchID:  matchID,
		PlayerID: playerID,
		BlueTeam: []string{"p1", "p2"},
		RedTeam:  []string{"p3", "p4"},
	}
}

func TestReportMatchStart_CreatesRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.linkIdentity(t, "p1", "disc-1")

	result, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	assert.True(t, result.RoomExists)
	assert.Equal(t, models.TeamBlue, result.TeamName)
	assert.True(t, result.Linked)
	assert.True(t, result.Assigned)
	assert.False(t, result.Debounced)
	require.NotNil(t, result.Channel)
	assert.Equal(t, provision.ChannelName("match_1", models.TeamBlue), result.Channel.ChannelName)
	assert.NotEmpty(t, result.Channel.InviteURL)

	room, ok, err := env.rooms.GetRoomByMatch(ctx, "match_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"p1", "p2"}, room.BlueTeam)
	assert.ElementsMatch(t, []string{"p3", "p4"}, room.RedTeam)
	assert.ElementsMatch(t, []string{"p1", "p2", "p3", "p4"}, room.Players)
	assert.NotEmpty(t, room.Channels.Blue.ChannelID)
	assert.NotEmpty(t, room.Channels.Red.ChannelID)

	// Every rostered player got a pointer to the match.
	for _, p := range []string{"p1", "p2", "p3", "p4"} {
		_, ok, err := env.rooms.GetUserMatch(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, "user match pointer missing for %s", p)
	}
}

func TestReportMatchStart_UnlinkedPlayer(t *testing.T) {
	env := newTestEnv()

	result, err := env.coord.ReportMatchStart(context.Background(), startInput("match_1", "p3"))
	require.NoError(t, err)

	assert.True(t, result.RoomExists)
	assert.Equal(t, models.TeamRed, result.TeamName)
	assert.False(t, result.Linked, "missing identity link is a normal state")
	assert.False(t, result.Assigned)
}

func TestReportMatchStart_EmptyRosters(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := models.MatchStartInput{MatchID: "match_2", PlayerID: "p1"}
	_, err := env.coord.ReportMatchStart(ctx, in)
	assert.ErrorIs(t, err, ErrTeamDataMissing)

	// Hard failure: nothing persisted, nothing provisioned.
	_, ok, err := env.rooms.GetRoomByMatch(ctx, "match_2")
	require.NoError(t, err)
	assert.False(t, ok)
	resources, err := env.prov.ListMatchResources(ctx)
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestReportMatchStart_InvalidInput(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.ReportMatchStart(ctx, models.MatchStartInput{MatchID: "nomatch", PlayerID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidMatchID)

	_, err = env.coord.ReportMatchStart(ctx, models.MatchStartInput{MatchID: "match_1"})
	assert.ErrorIs(t, err, ErrMissingPlayerID)
}

func TestReportMatchStart_Debounced(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.linkIdentity(t, "p1", "disc-1")

	first, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)
	require.False(t, first.Debounced)

	second, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	assert.True(t, second.Debounced)
	assert.False(t, second.Assigned, "debounced responses perform no assignment")
	assert.True(t, second.Linked)
	assert.Equal(t, first.RoomID, second.RoomID)
	assert.Equal(t, first.TeamName, second.TeamName)
	require.NotNil(t, second.Channel)
	assert.Equal(t, first.Channel.ChannelID, second.Channel.ChannelID)
}

func TestReportMatchStart_ConcurrentCreatesOneRoom(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	const callers = 4
	players := []string{"p1", "p2", "p3", "p4"}
	results := make([]models.MatchStartResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.coord.ReportMatchStart(ctx, startInput("match_1", players[i]))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	rooms, err := env.rooms.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1, "exactly one room per match")

	resources, err := env.prov.ListMatchResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1, "exactly one provisioned channel set")

	for _, res := range results {
		assert.True(t, res.RoomExists)
		assert.Equal(t, rooms[0].RoomID, res.RoomID, "all callers observe the winner's room")
	}
}

func TestReportMatchStart_NeverFlipsTeams(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	// A later reporter claims p1 and p2 are on red. The stored assignment
	// wins; the merge only adds genuinely new players.
	flipped := models.MatchStartInput{
		MatchID:  "match_1",
		PlayerID: "p2",
		BlueTeam: []string{"p5"},
		RedTeam:  []string{"p1", "p2", "p3", "p4"},
	}
	result, err := env.coord.ReportMatchStart(ctx, flipped)
	require.NoError(t, err)

	assert.Equal(t, models.TeamBlue, result.TeamName, "p2 keeps their stored side")
	require.NotNil(t, result.Channel)
	assert.Equal(t, provision.ChannelName("match_1", models.TeamBlue), result.Channel.ChannelName)

	room, _, err := env.rooms.GetRoomByMatch(ctx, "match_1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2", "p5"}, room.BlueTeam)
	assert.ElementsMatch(t, []string{"p3", "p4"}, room.RedTeam)
}

func TestReportMatchStart_ProvisionerFailureLeavesNoRecord(t *testing.T) {
	store := kv.NewMemoryStore()
	rooms := repo.NewKVRoomStore(store)
	failing := &failingProvisioner{Mock: provision.NewMock(), failCreate: true}
	coord := NewCoordinator(kv.NewLock(store), rooms, repo.NewKVIdentityResolver(store), failing, DefaultOptions())

	_, err := coord.ReportMatchStart(context.Background(), startInput("match_1", "p1"))
	require.Error(t, err)

	_, ok, err := rooms.GetRoomByMatch(context.Background(), "match_1")
	require.NoError(t, err)
	assert.False(t, ok, "no room record may point at channels that were never created")
}

func TestReportMatchLeave_RemovesPlayer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.linkIdentity(t, "p1", "disc-1")

	_, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	require.NoError(t, env.coord.ReportMatchLeave(ctx, "match_1", "p2"))

	// p1 still holds a role, so the room survives with a capped lifetime.
	room, ok, err := env.rooms.GetRoomByMatch(ctx, "match_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, room.Players, "p2")
	assert.False(t, room.ClosingRequestedAt.IsZero())
	assert.Equal(t, "early_leave", room.ClosingReason)

	_, ok, err = env.rooms.GetUserMatch(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, ok, "leave clears the per-player pointer")
}

func TestReportMatchLeave_LastActivePlayerTriggersTeardown(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.linkIdentity(t, "p1", "disc-1")

	_, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	// p1 is the only player with a role; once they leave, liveness drops
	// to zero and the room is torn down without an explicit match-end.
	require.NoError(t, env.coord.ReportMatchLeave(ctx, "match_1", "p1"))

	_, ok, err := env.rooms.GetRoomByMatch(ctx, "match_1")
	require.NoError(t, err)
	assert.False(t, ok, "empty room is closed immediately")

	resources, err := env.prov.ListMatchResources(ctx)
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestReportMatchLeave_NoRoomIsNoOp(t *testing.T) {
	env := newTestEnv()
	assert.NoError(t, env.coord.ReportMatchLeave(context.Background(), "match_9", "p1"))
}

func TestEndMatch_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	require.NoError(t, env.coord.EndMatch(ctx, "match_1"))
	_, ok, err := env.rooms.GetRoomByMatch(ctx, "match_1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A second end is a success, not an error.
	assert.NoError(t, env.coord.EndMatch(ctx, "match_1"))
}

func TestEndMatch_SurvivesProvisionerFailure(t *testing.T) {
	store := kv.NewMemoryStore()
	rooms := repo.NewKVRoomStore(store)
	prov := &failingProvisioner{Mock: provision.NewMock(), failDelete: true}
	coord := NewCoordinator(kv.NewLock(store), rooms, repo.NewKVIdentityResolver(store), prov, DefaultOptions())
	ctx := context.Background()

	_, err := coord.ReportMatchStart(ctx, startInput("match_1", "p1"))
	require.NoError(t, err)

	// A stuck room must never block a valid close: the local record goes
	// away even when remote cleanup fails.
	require.NoError(t, coord.EndMatch(ctx, "match_1"))
	_, ok, err := rooms.GetRoomByMatch(ctx, "match_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// failingProvisioner wraps the mock to inject failures at chosen points.
type failingProvisioner struct {
	*provision.Mock
	failCreate bool
	failDelete bool
}

func (f *failingProvisioner) CreateOrGetTeamChannel(ctx context.Context, matchID, teamName string) (models.TeamChannel, error) {
	if f.failCreate {
		return models.TeamChannel{}, errors.New("provisioner unavailable")
	}
	return f.Mock.CreateOrGetTeamChannel(ctx, matchID, teamName)
}

func (f *failingProvisioner) DeleteMatchResources(ctx context.Context, matchID string) error {
	if f.failDelete {
		return errors.New("provisioner unavailable")
	}
	return f.Mock.DeleteMatchResources(ctx, matchID)
}
