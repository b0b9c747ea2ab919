package reconcile

import (
	"testing"
	"time"

	"Gamebuddies/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{SettleWindow: 15 * time.Second, StartWindow: 20 * time.Second, LobbyMajority: 0.5}
}

func newRoom(status models.RoomStatus, locations ...models.Location) *models.Room {
	room := &models.Room{Code: "ABCD12", HostID: "U1", Status: status, MaxMembers: 4}
	for i, loc := range locations {
		role := models.RolePlayer
		if i == 0 {
			role = models.RoleHost
		}
		room.Members = append(room.Members, &models.Member{
			UserID:   "U" + string(rune('1'+i)),
			Role:     role,
			Location: loc,
		})
	}
	return room
}

// settle runs Evaluate/Apply until the room is stable, like the registry does
func settle(r *Reconciler, room *models.Room, st *State, now time.Time) []Decision {
	var out []Decision
	for i := 0; i < 4; i++ {
		d := r.Evaluate(room, st, now)
		if !d.Changed() {
			break
		}
		r.Apply(room, st, d, now)
		out = append(out, d)
	}
	return out
}

func TestEvaluate_Table(t *testing.T) {
	L, G, D := models.LocationLobby, models.LocationGame, models.LocationDisconnected

	tests := []struct {
		name      string
		status    models.RoomStatus
		locations []models.Location
		want      models.RoomStatus
		outcome   Outcome
	}{
		{"stable lobby", models.StatusWaitingForPlayers, []models.Location{L, L, L}, models.StatusWaitingForPlayers, NoChange},
		{"host and a player in game", models.StatusSelectingGame, []models.Location{G, G, L}, models.StatusInGame, Transition},
		{"host alone in game with others in lobby", models.StatusSelectingGame, []models.Location{G, L, L}, models.StatusStarting, Transition},
		{"solo host enters game", models.StatusWaitingForPlayers, []models.Location{G}, models.StatusInGame, Transition},
		{"everyone disconnected", models.StatusInGame, []models.Location{D, D, D}, models.StatusAbandoned, Transition},
		{"one connected member keeps room alive", models.StatusWaitingForPlayers, []models.Location{D, D, L}, models.StatusWaitingForPlayers, NoChange},
		{"abandoned room regains a member", models.StatusAbandoned, []models.Location{L, D}, models.StatusWaitingForPlayers, Transition},
		{"paused is left alone", models.StatusPaused, []models.Location{L, L, L}, models.StatusPaused, NoChange},
		{"players back with host", models.StatusInGame, []models.Location{L, L, L, G}, models.StatusFinished, Transition},
		{"one straggler is not a majority", models.StatusInGame, []models.Location{G, G, G, L}, models.StatusInGame, NoChange},
		{"players in game while host in lobby outside starting", models.StatusWaitingForPlayers, []models.Location{L, G, G}, models.StatusWaitingForPlayers, NoChange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testConfig())
			room := newRoom(tt.status, tt.locations...)
			d := r.Evaluate(room, &State{}, t0)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.want, d.To)
			assert.Equal(t, tt.status, room.Status, "Evaluate must not mutate the room")
		})
	}
}

func TestEvaluate_StableStatusIsIdempotent(t *testing.T) {
	r := New(testConfig())
	room := newRoom(models.StatusInGame, models.LocationGame, models.LocationGame, models.LocationGame)
	st := &State{}

	for i := 0; i < 3; i++ {
		d := r.Evaluate(room, st, t0.Add(time.Duration(i)*time.Minute))
		assert.False(t, d.Changed())
		assert.Zero(t, d.RecheckIn)
	}
}

func TestEvaluate_HostAloneInGameRevertsAfterStartWindow(t *testing.T) {
	r := New(testConfig())
	room := newRoom(models.StatusSelectingGame, models.LocationLobby, models.LocationLobby, models.LocationLobby)
	room.GameID = "ddf"
	st := &State{}
	room.Host().Location = models.LocationGame

	steps := settle(r, room, st, t0)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StatusStarting, room.Status)
	assert.Equal(t, 20*time.Second, steps[0].RecheckIn)

	d := r.Evaluate(room, st, t0.Add(5*time.Second))
	assert.False(t, d.Changed())
	assert.Equal(t, 15*time.Second, d.RecheckIn)

	d = r.Evaluate(room, st, t0.Add(20*time.Second))
	require.Equal(t, ConflictResolved, d.Outcome)
	assert.Equal(t, models.StatusSelectingGame, d.To)
	r.Apply(room, st, d, t0.Add(20*time.Second))

	// the host signal stays overruled until it changes
	assert.Empty(t, settle(r, room, st, t0.Add(time.Minute)))

	room.Host().Location = models.LocationLobby
	assert.Empty(t, settle(r, room, st, t0.Add(2*time.Minute)))
	assert.False(t, st.HostOverruled)
}

func TestEvaluate_PlayerJoinsHostDuringStartWindow(t *testing.T) {
	r := New(testConfig())
	room := newRoom(models.StatusWaitingForPlayers, models.LocationGame, models.LocationLobby, models.LocationLobby)
	st := &State{}
	settle(r, room, st, t0)
	require.Equal(t, models.StatusStarting, room.Status)

	room.Members[1].Location = models.LocationGame
	steps := settle(r, room, st, t0.Add(3*time.Second))
	require.Len(t, steps, 1)
	assert.Equal(t, Transition, steps[0].Outcome)
	assert.Equal(t, models.StatusInGame, room.Status)
}

func TestEvaluate_HostStuckInGameEmitsOneConflictNotice(t *testing.T) {
	r := New(testConfig())
	L, G := models.LocationLobby, models.LocationGame
	room := newRoom(models.StatusInGame, G, L, L, L)
	st := &State{}

	var notices int
	for s := 0; s <= 60; s += 5 {
		for _, d := range settle(r, room, st, t0.Add(time.Duration(s)*time.Second)) {
			if d.Outcome == ConflictResolved {
				notices++
			}
			if s < 15 {
				t.Fatalf("resolved before the settle window at %ds", s)
			}
		}
	}
	assert.Equal(t, 1, notices)
	assert.Equal(t, models.StatusFinished, room.Status)
	assert.True(t, st.HostOverruled)
}

func TestEvaluate_ConflictClearsWhenPlayersGoBack(t *testing.T) {
	r := New(testConfig())
	L, G := models.LocationLobby, models.LocationGame
	room := newRoom(models.StatusInGame, G, L, L, L)
	st := &State{}

	d := r.Evaluate(room, st, t0)
	assert.False(t, d.Changed())
	assert.Equal(t, 15*time.Second, d.RecheckIn)

	for _, m := range room.Members[1:] {
		m.Location = G
	}
	d = r.Evaluate(room, st, t0.Add(10*time.Second))
	assert.False(t, d.Changed())
	assert.True(t, st.ConflictSince.IsZero())
}

func TestEvaluate_PlayersInGameWhileHostSignalLags(t *testing.T) {
	r := New(testConfig())
	L, G := models.LocationLobby, models.LocationGame
	room := newRoom(models.StatusWaitingForPlayers, L, L, L)
	st := &State{}
	st.Request(models.StatusStarting)
	settle(r, room, st, t0)
	require.Equal(t, models.StatusStarting, room.Status)

	room.Members[1].Location = G
	room.Members[2].Location = G
	d := r.Evaluate(room, st, t0.Add(2*time.Second))
	assert.False(t, d.Changed())

	d = r.Evaluate(room, st, t0.Add(17*time.Second))
	require.Equal(t, ConflictResolved, d.Outcome)
	assert.Equal(t, models.StatusInGame, d.To)
}

func TestEvaluate_RequestedStartTimesOut(t *testing.T) {
	r := New(testConfig())
	room := newRoom(models.StatusWaitingForPlayers, models.LocationLobby, models.LocationLobby)
	st := &State{}
	st.Request(models.StatusStarting)
	settle(r, room, st, t0)
	require.Equal(t, models.StatusStarting, room.Status)

	steps := settle(r, room, st, t0.Add(21*time.Second))
	require.Len(t, steps, 1)
	assert.Equal(t, Transition, steps[0].Outcome)
	assert.Equal(t, models.StatusWaitingForPlayers, room.Status)
}

func TestEvaluate_IllegalRequestIsDropped(t *testing.T) {
	r := New(testConfig())
	room := newRoom(models.StatusWaitingForPlayers, models.LocationLobby, models.LocationLobby)
	st := &State{}
	st.Request(models.StatusPaused)

	d := r.Evaluate(room, st, t0)
	assert.False(t, d.Changed())
	assert.Empty(t, st.Requested)
}

func TestAdmit(t *testing.T) {
	r := New(testConfig())
	L, G := models.LocationLobby, models.LocationGame
	room := newRoom(models.StatusInGame, G, G)
	st := &State{}

	d, ok := r.Admit(room, st, models.StatusFinished, t0)
	assert.False(t, ok)
	assert.Equal(t, models.StatusInGame, d.To)
	assert.Equal(t, models.StatusInGame, room.Status, "the room is left untouched")
	assert.Equal(t, State{}, *st)

	_, ok = r.Admit(room, st, models.StatusPaused, t0)
	assert.True(t, ok)

	lobby := newRoom(models.StatusWaitingForPlayers, L, L)
	_, ok = r.Admit(lobby, st, models.StatusInGame, t0)
	assert.False(t, ok)
	_, ok = r.Admit(lobby, st, models.StatusStarting, t0)
	assert.True(t, ok)
}

func TestObserve(t *testing.T) {
	room := newRoom(models.StatusInGame, models.LocationGame, models.LocationLobby, models.LocationDisconnected)
	assert.Equal(t, Signals{HostLocation: models.LocationGame, Active: 2, InGame: 1, InLobby: 1}, Observe(room))
}

func TestScenario_FourPlayersEnterAndLeaveGame(t *testing.T) {
	r := New(testConfig())
	L, G := models.LocationLobby, models.LocationGame
	room := newRoom(models.StatusSelectingGame, L, L, L, L)
	room.GameID = "ddf"
	st := &State{}

	for _, m := range room.Members {
		m.Location = G
	}
	steps := settle(r, room, st, t0)
	require.Len(t, steps, 1, "status changes exactly once")
	assert.Equal(t, models.StatusInGame, room.Status)

	room.Members[3].Location = L
	assert.Empty(t, settle(r, room, st, t0.Add(time.Second)))
	room.Members[2].Location = L
	assert.Empty(t, settle(r, room, st, t0.Add(2*time.Second)), "two of four is not a majority")

	room.Members[1].Location = L
	room.Members[0].Location = L
	steps = settle(r, room, st, t0.Add(3*time.Second))
	require.Len(t, steps, 1)
	assert.Equal(t, models.StatusFinished, room.Status)
}

func TestNew_DefaultsMajority(t *testing.T) {
	r := New(Config{LobbyMajority: 2})
	assert.Equal(t, 0.5, r.Config().LobbyMajority)
}
