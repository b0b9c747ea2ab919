package models

import "time"

// MemberView is the wire representation of a member
type MemberView struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        Role      `json:"role"`
	Location    Location  `json:"location"`
	Ready       bool      `json:"ready"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joined_at"`
}

// RoomSummary is a point-in-time copy of a room. It is what gets broadcast to
// subscribers and what the sweeper mirrors to the persistence API.
type RoomSummary struct {
	Code         string       `json:"code"`
	Name         string       `json:"name,omitempty"`
	HostID       string       `json:"host_id"`
	Status       RoomStatus   `json:"status"`
	GameID       string       `json:"game_id,omitempty"`
	Visibility   Visibility   `json:"visibility"`
	MaxMembers   int          `json:"max_members"`
	MemberCount  int          `json:"member_count"`
	StreamerMode bool         `json:"streamer_mode"`
	HasPasscode  bool         `json:"has_passcode"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
	Members      []MemberView `json:"members"`
}

func (r *Room) Summary() RoomSummary {
	members := make([]MemberView, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, MemberView{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			Location:    m.Location,
			Ready:       m.Ready,
			Connected:   m.Connected(),
			JoinedAt:    m.JoinedAt,
		})
	}
	return RoomSummary{
		Code:         r.Code,
		Name:         r.Name,
		HostID:       r.HostID,
		Status:       r.Status,
		GameID:       r.GameID,
		Visibility:   r.Visibility,
		MaxMembers:   r.MaxMembers,
		MemberCount:  len(r.Members),
		StreamerMode: r.StreamerMode,
		HasPasscode:  len(r.PasscodeHash) > 0,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		Members:      members,
	}
}

// RoomEvent is an entry of the room event log handed to collaborators
type RoomEvent struct {
	ID       string         `json:"id"`
	RoomCode string         `json:"room_code"`
	Kind     string         `json:"kind"`
	UserID   string         `json:"user_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}
