//go:build integration

package persistence

import (
	"Gamebuddies/models"
	"Gamebuddies/models/postgres"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gamebuddies"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&postgres.Room{}, &postgres.RoomMember{}, &postgres.RoomEvent{}))
	return db
}

func TestStoreRoundTrip(t *testing.T) {
	db := setupPostgres(t)
	store := NewStore(db)
	ctx := context.Background()

	summary := sampleSummary()
	require.NoError(t, store.SaveRooms(ctx, []models.RoomSummary{summary}))

	// a second flush replaces the members
	summary.Members = summary.Members[:1]
	summary.Status = models.StatusFinished
	require.NoError(t, store.SaveRooms(ctx, []models.RoomSummary{summary}))

	got, err := store.GetRoom(ctx, "ABCD12")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, got.Status)
	assert.Equal(t, 1, got.MemberCount)

	ev := models.RoomEvent{ID: "0d8f7a44-7b8e-4f57-a1de-5bfb3bb5e7a1", RoomCode: "ABCD12", Kind: "room_created", At: time.Now()}
	require.NoError(t, store.LogEvents(ctx, []models.RoomEvent{ev}))
	require.NoError(t, store.LogEvents(ctx, []models.RoomEvent{ev}), "retried batches are idempotent")

	removed, err := store.CleanupStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	_, err = store.GetRoom(ctx, "ABCD12")
	assert.Error(t, err)
}
