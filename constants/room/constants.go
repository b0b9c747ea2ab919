package room_constants

import "time"

const CodeLength = 6
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const MaxCodeAttempts = 10

const DefaultMaxMembers = 8
const MinMembers = 2
const MaxMembersLimit = 16
const MaxChatRunes = 500
const MaxNameRunes = 40

// Timing defaults, all overridable through configuration
const (
	DefaultHeartbeatTimeout = 45 * time.Second
	DefaultPresenceInterval = 5 * time.Second
	DefaultDisconnectGrace  = 30 * time.Second
	DefaultSettleWindow     = 15 * time.Second
	DefaultStartWindow      = 20 * time.Second
	DefaultLobbyMajority    = 0.5
	DefaultRoomIdleTimeout  = 30 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultMemberEvictAfter = 2 * time.Minute
	DefaultStaleRowAge      = 24 * time.Hour
	DefaultHealthInterval   = 10 * time.Second
	DefaultHealthTimeout    = 2 * time.Second
	DefaultUpstreamTimeout  = 30 * time.Second
)

// Inbound (client -> server) socket events
const (
	EventCreateRoom       = "create-room"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventJoinSocketRoom   = "join-socket-room"
	EventGetPublicRooms   = "get-public-rooms"
	EventSelectGame       = "select-game"
	EventStartGame        = "start-game"
	EventTransferHost     = "transfer-host"
	EventKickPlayer       = "kick-player"
	EventToggleReady      = "toggle-ready"
	EventChangeRoomStatus = "change-room-status"
	EventUpdateLocation   = "update-location"
	EventHeartbeat        = "heartbeat"
	EventChatMessage      = "chat-message"
	EventIdentify         = "identify"
	EventDeleteRoom       = "delete-room"
)

// Outbound (server -> client) socket events
const (
	EventRoomCreated           = "room-created"
	EventRoomJoined            = "room-joined"
	EventRoomLeft              = "room-left"
	EventStatusChanged         = "status-changed"
	EventPublicRoomsList       = "public-rooms-list"
	EventPlayerJoined          = "player-joined"
	EventPlayerLeft            = "player-left"
	EventPlayerDisconnected    = "player-disconnected"
	EventPlayerStatusUpdated   = "player-status-updated"
	EventPlayerKicked          = "player-kicked"
	EventHostTransferred       = "host-transferred"
	EventGameSelected          = "game-selected"
	EventGameStarted           = "game-started"
	EventStatusSync            = "status-sync"
	EventStatusConflictResolve = "status-conflict-resolved"
	EventIdentified            = "identified"
	EventHeartbeatAck          = "heartbeat-ack"
	EventError                 = "error"
)

// Kinds recorded in the room event log and sent to the notification hook
const (
	LogRoomCreated      = "room_created"
	LogPlayerJoined     = "player_joined"
	LogPlayerLeft       = "player_left"
	LogPlayerKicked     = "player_kicked"
	LogHostTransferred  = "host_transferred"
	LogStatusChanged    = "status_changed"
	LogConflictResolved = "status_conflict_resolved"
	LogGameStarted      = "game_started"
	LogRoomDeleted      = "room_deleted"
)
