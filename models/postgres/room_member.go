package postgres

import (
	"Gamebuddies/models"
	"time"
)

// RoomMember is one row per user in a room
type RoomMember struct {
	// NOTE: composite primary key definition
	RoomCode    string    `gorm:"primaryKey;size:12;not null"`
	UserID      string    `gorm:"primaryKey;size:64;not null;index"`
	DisplayName string    `gorm:"size:64"`
	Role        string    `gorm:"size:16;not null"`
	Location    string    `gorm:"size:16;not null"`
	Ready       bool      `gorm:"not null"`
	Connected   bool      `gorm:"not null"`
	JoinedAt    time.Time `gorm:"not null"`
}

func MembersFromSummary(s models.RoomSummary) []RoomMember {
	rows := make([]RoomMember, 0, len(s.Members))
	for _, m := range s.Members {
		rows = append(rows, RoomMember{
			RoomCode:    s.Code,
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        string(m.Role),
			Location:    string(m.Location),
			Ready:       m.Ready,
			Connected:   m.Connected,
			JoinedAt:    m.JoinedAt,
		})
	}
	return rows
}

func (m RoomMember) View() models.MemberView {
	return models.MemberView{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Role:        models.Role(m.Role),
		Location:    models.Location(m.Location),
		Ready:       m.Ready,
		Connected:   m.Connected,
		JoinedAt:    m.JoinedAt,
	}
}
