package models

import "time"

// RoomStatus is the canonical state of a room. Only the status reconciler
// moves a room from one status to another.
type RoomStatus string

const (
	StatusWaitingForPlayers RoomStatus = "waiting_for_players"
	StatusSelectingGame     RoomStatus = "selecting_game"
	StatusStarting          RoomStatus = "starting"
	StatusInGame            RoomStatus = "in_game"
	StatusPaused            RoomStatus = "paused"
	StatusFinished          RoomStatus = "finished"
	StatusAbandoned         RoomStatus = "abandoned"
)

// JoinableStatuses lists the statuses in which new members are accepted
var JoinableStatuses = []RoomStatus{
	StatusWaitingForPlayers,
	StatusSelectingGame,
	StatusFinished,
}

var transitions = map[RoomStatus][]RoomStatus{
	StatusWaitingForPlayers: {StatusSelectingGame, StatusStarting, StatusInGame, StatusAbandoned},
	StatusSelectingGame:     {StatusWaitingForPlayers, StatusStarting, StatusInGame, StatusAbandoned},
	StatusStarting:          {StatusInGame, StatusWaitingForPlayers, StatusSelectingGame, StatusAbandoned},
	StatusInGame:            {StatusPaused, StatusFinished, StatusWaitingForPlayers, StatusAbandoned},
	StatusPaused:            {StatusInGame, StatusFinished, StatusWaitingForPlayers, StatusAbandoned},
	StatusFinished:          {StatusWaitingForPlayers, StatusSelectingGame, StatusStarting, StatusInGame, StatusAbandoned},
	StatusAbandoned:         {StatusWaitingForPlayers},
}

func (s RoomStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s RoomStatus) Joinable() bool {
	for _, j := range JoinableStatuses {
		if s == j {
			return true
		}
	}
	return false
}

// CanTransition reports whether a room may move from one status to another
func CanTransition(from, to RoomStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Location is a member's self-reported presence signal
type Location string

const (
	LocationLobby        Location = "lobby"
	LocationGame         Location = "game"
	LocationDisconnected Location = "disconnected"
)

func (l Location) Valid() bool {
	return l == LocationLobby || l == LocationGame || l == LocationDisconnected
}

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// RoomSettings are the options a host picks when creating a room
type RoomSettings struct {
	Name         string
	Visibility   Visibility
	MaxMembers   int
	StreamerMode bool
	Passcode     string
	DisplayName  string
}

/*
 * 'Member' is a user's participation in a room. ConnectionID is only a lookup
 * key into the presence tracker and is empty while the member has no live channel.
 */
type Member struct {
	UserID         string
	DisplayName    string
	Role           Role
	ConnectionID   string
	Location       Location
	PriorLocation  Location
	Ready          bool
	LastPing       time.Time
	JoinedAt       time.Time
	DisconnectedAt time.Time
}

func (m *Member) Connected() bool {
	return m.ConnectionID != ""
}

// Room is a lobby instance. Members are kept in join order, which is also
// the tenure order used when a new host has to be picked.
type Room struct {
	Code         string
	Name         string
	HostID       string
	Status       RoomStatus
	GameID       string
	Visibility   Visibility
	MaxMembers   int
	StreamerMode bool
	PasscodeHash []byte
	CreatedAt    time.Time
	LastActivity time.Time
	Members      []*Member
}

func (r *Room) Member(userID string) *Member {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (r *Room) Host() *Member {
	return r.Member(r.HostID)
}

func (r *Room) Full() bool {
	return len(r.Members) >= r.MaxMembers
}

// RemoveMember drops a member and returns it, or nil if the user was not in the room
func (r *Room) RemoveMember(userID string) *Member {
	for i, m := range r.Members {
		if m.UserID == userID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return m
		}
	}
	return nil
}

// Touch records activity on the room
func (r *Room) Touch(now time.Time) {
	r.LastActivity = now
}
