package redis

import (
	"Gamebuddies/models"
	redis_models "Gamebuddies/models/redis"
	redis_utils "Gamebuddies/services/redis/utils"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatKeys(t *testing.T) {
	assert.Equal(t, "room:ABCD12", redis_utils.FormatRoomKey("ABCD12"))
	assert.Equal(t, "presence:U1", redis_utils.FormatPresenceKey("U1"))
}

func TestNewRedisClient(t *testing.T) {
	rc, err := NewRedisClient("redis://localhost:6380/2", 0)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", rc.client.Options().Addr)
	assert.Equal(t, 2, rc.client.Options().DB)

	rc, err = NewRedisClient("localhost:6379", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rc.client.Options().DB)

	_, err = NewRedisClient("redis://%zz", 0)
	assert.Error(t, err)
}

func TestPresenceOf(t *testing.T) {
	room := models.RoomSummary{Code: "ABCD12", GameID: "ddf", LastActivity: time.Now()}

	tests := []struct {
		name   string
		member models.MemberView
		want   redis_models.PresenceStatus
	}{
		{"lobby", models.MemberView{UserID: "U1", Location: models.LocationLobby, Connected: true}, redis_models.PresenceInLobby},
		{"game", models.MemberView{UserID: "U1", Location: models.LocationGame, Connected: true}, redis_models.PresenceInGame},
		{"grace period", models.MemberView{UserID: "U1", Location: models.LocationGame}, redis_models.PresenceAway},
		{"disconnected", models.MemberView{UserID: "U1", Location: models.LocationDisconnected}, redis_models.PresenceAway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := presenceOf(room, tt.member)
			assert.Equal(t, tt.want, p.Status)
			assert.Equal(t, "ABCD12", p.RoomCode)
		})
	}

	room.StreamerMode = true
	p := presenceOf(room, models.MemberView{UserID: "U1", Location: models.LocationLobby, Connected: true})
	assert.True(t, p.Hidden)
	assert.Empty(t, p.RoomCode, "streamer rooms keep their code out of friend presence")
}
