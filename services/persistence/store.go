// Package persistence is the durable mirror of the room registry. Writes are
// best-effort: every failure comes back as a Transient error and the caller
// retries on its next pass.
package persistence

import (
	"Gamebuddies/models"
	"Gamebuddies/models/postgres"
	"Gamebuddies/utils/apperr"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const eventBatchSize = 100

type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, log: logrus.WithField("component", "persistence")}
}

func failed(op string, err error) error {
	return apperr.Transient(apperr.CodePersistenceFailed, op+" failed", err)
}

// SaveRooms upserts room rows and replaces their member rows
func (s *Store) SaveRooms(ctx context.Context, rooms []models.RoomSummary) error {
	if len(rooms) == 0 {
		return nil
	}
	rows := make([]postgres.Room, 0, len(rooms))
	codes := make([]string, 0, len(rooms))
	var members []postgres.RoomMember
	for _, summary := range rooms {
		rows = append(rows, postgres.RoomFromSummary(summary))
		codes = append(codes, summary.Code)
		members = append(members, postgres.MembersFromSummary(summary)...)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			UpdateAll: true,
		}).Create(&rows).Error
		if err != nil {
			return err
		}
		if err := tx.Where("room_code IN ?", codes).Delete(&postgres.RoomMember{}).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return failed("save rooms", err)
	}
	s.log.WithField("rooms", len(rows)).Debug("rooms saved")
	return nil
}

// DeleteRooms removes room rows together with their members
func (s *Store) DeleteRooms(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_code IN ?", codes).Delete(&postgres.RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Where("code IN ?", codes).Delete(&postgres.Room{}).Error
	})
	if err != nil {
		return failed("delete rooms", err)
	}
	return nil
}

// LogEvents appends to the room event log. Event ids make a retried batch
// safe to write twice.
func (s *Store) LogEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]postgres.RoomEvent, 0, len(events))
	for _, ev := range events {
		row, err := postgres.RoomEventFromModel(ev)
		if err != nil {
			// a payload that cannot be encoded will never succeed, so drop it
			s.log.WithFields(logrus.Fields{"room": ev.RoomCode, "kind": ev.Kind}).WithError(err).Warn("dropping room event")
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(&rows, eventBatchSize).Error
	if err != nil {
		return failed("log events", err)
	}
	return nil
}

// CleanupStale bulk-deletes rows last touched before the cutoff and returns
// how many rows went away
func (s *Store) CleanupStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&postgres.Room{}).Select("code").Where("last_activity < ?", cutoff)
		res := tx.Where("room_code IN (?)", stale).Delete(&postgres.RoomMember{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		res = tx.Where("last_activity < ?", cutoff).Delete(&postgres.Room{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		res = tx.Where("created_at < ?", cutoff).Delete(&postgres.RoomEvent{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, failed("cleanup", err)
	}
	return removed, nil
}

// GetRoom reads the last persisted snapshot of a room
func (s *Store) GetRoom(ctx context.Context, code string) (models.RoomSummary, error) {
	var row postgres.Room
	err := s.db.WithContext(ctx).Preload("Members").Where("code = ?", code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoomSummary{}, apperr.RoomNotFound(code)
	}
	if err != nil {
		return models.RoomSummary{}, failed("get room", err)
	}
	return row.Summary(), nil
}
