package postgres

import (
	"Gamebuddies/models"
	"time"
)

/*
 * 'Room' is the durable mirror of a live room. The in-memory registry stays
 * the authority; rows are written by the sweeper and read by collaborators.
 */
type Room struct {
	Code         string    `gorm:"primaryKey;size:12;not null"`
	Name         string    `gorm:"size:64"`
	HostID       string    `gorm:"size:64;index:idx_rooms_host"`
	Status       string    `gorm:"size:32;not null;index:idx_rooms_status"`
	GameID       string    `gorm:"size:64"`
	Visibility   string    `gorm:"size:16;not null"`
	MaxMembers   int       `gorm:"not null"`
	StreamerMode bool      `gorm:"not null"`
	HasPasscode  bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	LastActivity time.Time `gorm:"not null;index:idx_rooms_last_activity"`
	UpdatedAt    time.Time

	// Relationship with the members of the room
	Members []RoomMember `gorm:"foreignKey:RoomCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func RoomFromSummary(s models.RoomSummary) Room {
	return Room{
		Code:         s.Code,
		Name:         s.Name,
		HostID:       s.HostID,
		Status:       string(s.Status),
		GameID:       s.GameID,
		Visibility:   string(s.Visibility),
		MaxMembers:   s.MaxMembers,
		StreamerMode: s.StreamerMode,
		HasPasscode:  s.HasPasscode,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

func (r Room) Summary() models.RoomSummary {
	members := make([]models.MemberView, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, m.View())
	}
	return models.RoomSummary{
		Code:         r.Code,
		Name:         r.Name,
		HostID:       r.HostID,
		Status:       models.RoomStatus(r.Status),
		GameID:       r.GameID,
		Visibility:   models.Visibility(r.Visibility),
		MaxMembers:   r.MaxMembers,
		MemberCount:  len(members),
		StreamerMode: r.StreamerMode,
		HasPasscode:  r.HasPasscode,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		Members:      members,
	}
}
