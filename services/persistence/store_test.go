package persistence

import (
	"Gamebuddies/models"
	"Gamebuddies/utils/apperr"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(pgdriver.New(pgdriver.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStore(gdb), mock
}

func sampleSummary() models.RoomSummary {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.RoomSummary{
		Code:         "ABCD12",
		HostID:       "U1",
		Status:       models.StatusWaitingForPlayers,
		Visibility:   models.VisibilityPublic,
		MaxMembers:   4,
		MemberCount:  2,
		CreatedAt:    now,
		LastActivity: now,
		Members: []models.MemberView{
			{UserID: "U1", Role: models.RoleHost, Location: models.LocationLobby, Connected: true, JoinedAt: now},
			{UserID: "U2", Role: models.RolePlayer, Location: models.LocationGame, JoinedAt: now},
		},
	}
}

func TestSaveRooms(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "rooms" .* ON CONFLICT \("code"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "room_members" WHERE room_code IN \(\$1\)`).
		WithArgs("ABCD12").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "room_members"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.SaveRooms(context.Background(), []models.RoomSummary{sampleSummary()}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRooms_NothingToDo(t *testing.T) {
	store, mock := newMockStore(t)
	assert.NoError(t, store.SaveRooms(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRooms_FailureIsTransient(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "rooms"`).WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	err := store.SaveRooms(context.Background(), []models.RoomSummary{sampleSummary()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
	assert.Equal(t, apperr.CodePersistenceFailed, apperr.As(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRooms(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "room_members" WHERE room_code IN \(\$1,\$2\)`).
		WithArgs("AAAAAA", "BBBBBB").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM "rooms" WHERE code IN \(\$1,\$2\)`).
		WithArgs("AAAAAA", "BBBBBB").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteRooms(context.Background(), []string{"AAAAAA", "BBBBBB"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEvents(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "room_events" .* ON CONFLICT \("id"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.LogEvents(context.Background(), []models.RoomEvent{
		{ID: "0d8f7a44-7b8e-4f57-a1de-5bfb3bb5e7a1", RoomCode: "ABCD12", Kind: "room_created", UserID: "U1", At: time.Now()},
		{ID: "7f7b2b36-2f6e-4b0f-8a9a-29e9b0b8a6c2", RoomCode: "ABCD12", Kind: "player_joined", UserID: "U2",
			Payload: map[string]any{"reason": "invite"}, At: time.Now()},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupStale(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "room_members" WHERE room_code IN \(SELECT .*code.* FROM "rooms" WHERE last_activity < \$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM "rooms" WHERE last_activity < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "room_events" WHERE created_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectCommit()

	removed, err := store.CleanupStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 16, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoom(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "rooms" WHERE code = \$1`).
		WithArgs("ABCD12", 1).
		WillReturnRows(sqlmock.NewRows([]string{"code", "host_id", "status", "visibility", "max_members", "created_at", "last_activity"}).
			AddRow("ABCD12", "U1", "in_game", "public", 4, now, now))
	mock.ExpectQuery(`SELECT \* FROM "room_members" WHERE "room_members"."room_code" = \$1`).
		WithArgs("ABCD12").
		WillReturnRows(sqlmock.NewRows([]string{"room_code", "user_id", "role", "location", "connected", "joined_at"}).
			AddRow("ABCD12", "U1", "host", "game", true, now).
			AddRow("ABCD12", "U2", "player", "game", true, now))

	s, err := store.GetRoom(context.Background(), "ABCD12")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInGame, s.Status)
	assert.Equal(t, 2, s.MemberCount)
	assert.Equal(t, models.RoleHost, s.Members[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoom_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "rooms" WHERE code = \$1`).
		WithArgs("ZZZZZZ", 1).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))

	_, err := store.GetRoom(context.Background(), "ZZZZZZ")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
