//go:build integration

package redis

import (
	"Gamebuddies/models"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *RedisClient {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rc, err := InitRedis(endpoint, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestMirrorRoundTrip(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	room := models.RoomSummary{
		Code:         "ABCD12",
		HostID:       "U1",
		Status:       models.StatusInGame,
		MaxMembers:   4,
		MemberCount:  1,
		LastActivity: time.Now().UTC().Truncate(time.Second),
		Members: []models.MemberView{
			{UserID: "U1", Role: models.RoleHost, Location: models.LocationGame, Connected: true},
		},
	}
	require.NoError(t, rc.MirrorRooms(ctx, []models.RoomSummary{room}, time.Minute))

	got, err := rc.GetRoom(ctx, "ABCD12")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusInGame, got.Status)

	p, err := rc.GetPresence(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ABCD12", p.RoomCode)

	require.NoError(t, rc.DeleteRooms(ctx, []string{"ABCD12"}))
	require.NoError(t, rc.ClearPresence(ctx, "U1"))

	got, err = rc.GetRoom(ctx, "ABCD12")
	require.NoError(t, err)
	assert.Nil(t, got)
	p, err = rc.GetPresence(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, p)
}
