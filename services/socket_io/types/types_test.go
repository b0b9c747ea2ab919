package socketio_types

import (
	"Gamebuddies/services/presence"
	"Gamebuddies/utils/apperr"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	var p SelectGamePayload
	require.NoError(t, Decode("select-game", []any{map[string]any{"room_code": "ABCD12", "game_id": "trivia"}}, &p))
	assert.Equal(t, SelectGamePayload{RoomCode: "ABCD12", GameID: "trivia"}, p)

	var c CreateRoomPayload
	require.NoError(t, Decode("create-room", []any{`{"max_players": 4, "visibility": "private"}`}, &c))
	assert.Equal(t, 4, c.MaxPlayers)

	err := Decode("select-game", []any{map[string]any{"room_code": "ABCD12"}}, &p)
	require.Error(t, err)
	e := apperr.As(err)
	assert.Equal(t, apperr.CodeInvalidPayload, e.Code)
	assert.Equal(t, "select-game", e.Details["event"])
	assert.Contains(t, e.Message, "GameID fails required")

	err = Decode("create-room", []any{map[string]any{"visibility": "secret"}}, &c)
	assert.Contains(t, apperr.As(err).Message, "oneof")
}

func TestDecodeOptional(t *testing.T) {
	var h HeartbeatPayload
	assert.NoError(t, DecodeOptional("heartbeat", nil, &h))
	assert.NoError(t, DecodeOptional("heartbeat", []any{func([]any, error) {}}, &h))
	assert.NoError(t, DecodeOptional("heartbeat", []any{map[string]any{"room_code": "ABCD12"}}, &h))
	assert.Equal(t, "ABCD12", h.RoomCode)
	assert.Error(t, DecodeOptional("heartbeat", []any{map[string]any{"extra": 1}}, &h))
}

type recConn struct {
	id     string
	events []string
	left   []string
	closed bool
}

func (c *recConn) ID() string               { return c.id }
func (c *recConn) Emit(event string, _ any) { c.events = append(c.events, event) }
func (c *recConn) Join(string)              {}
func (c *recConn) Leave(room string)        { c.left = append(c.left, room) }
func (c *recConn) Close()                   { c.closed = true }

func TestSocketServer(t *testing.T) {
	tracker := presence.NewTracker(time.Minute, time.Second)
	s := NewSocketServer(nil, tracker)
	c := &recConn{id: "c1"}
	s.AddConnection(c)
	tracker.Open("c1")
	tracker.BindRoom("c1", "ABCD12")

	s.ToConnection("c1", "room-left", nil)
	s.ToConnection("nobody", "room-left", nil)
	s.ToRoom("ABCD12", "status-changed", nil)
	assert.Equal(t, []string{"room-left"}, c.events)

	s.Leave("c1", "ABCD12")
	assert.Equal(t, []string{"ABCD12"}, c.left)
	got, _ := tracker.Get("c1")
	assert.Empty(t, got.Topics)
	assert.Empty(t, got.RoomCode, "a kicked connection is no longer bound to the room")

	s.CloseConnection("c1")
	assert.True(t, c.closed)

	s.RemoveConnection("c1")
	assert.Zero(t, s.Count())
}
