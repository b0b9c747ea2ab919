package redis

import "time"

// PresenceStatus is what friends see for a user
type PresenceStatus string

const (
	PresenceInLobby PresenceStatus = "in_lobby"
	PresenceInGame  PresenceStatus = "in_game"
	PresenceAway    PresenceStatus = "away"
)

// UserPresence is the friend-presence record mirrored for each room member.
// Key format: "presence:{user_id}"
type UserPresence struct {
	UserID    string         `json:"user_id"`
	RoomCode  string         `json:"room_code"`
	GameID    string         `json:"game_id,omitempty"`
	Status    PresenceStatus `json:"status"`
	Connected bool           `json:"connected"`
	// Hidden rooms (streamer mode) do not expose their code to friends
	Hidden    bool      `json:"hidden"`
	UpdatedAt time.Time `json:"updated_at"`
}
