package postgres

import (
	"Gamebuddies/models"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

/*
 * 'RoomEvent' is the append-only log collaborators (achievements, friend
 * presence) read from. It has no foreign key to rooms so it outlives them.
 */
type RoomEvent struct {
	ID        string         `gorm:"primaryKey;type:uuid;not null"`
	RoomCode  string         `gorm:"size:12;not null;index:idx_room_events_room"`
	Kind      string         `gorm:"size:40;not null;index:idx_room_events_kind"`
	UserID    string         `gorm:"size:64"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index:idx_room_events_created"`
}

func RoomEventFromModel(ev models.RoomEvent) (RoomEvent, error) {
	payload := []byte("{}")
	if len(ev.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(ev.Payload); err != nil {
			return RoomEvent{}, err
		}
	}
	return RoomEvent{
		ID:        ev.ID,
		RoomCode:  ev.RoomCode,
		Kind:      ev.Kind,
		UserID:    ev.UserID,
		Payload:   datatypes.JSON(payload),
		CreatedAt: ev.At,
	}, nil
}
