package handlers

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/models"
	"Gamebuddies/services/rooms"
	socketio_types "Gamebuddies/services/socket_io/types"
	"Gamebuddies/utils/apperr"

	"github.com/gin-gonic/gin"
)

func (s *Session) identify(args []any) error {
	var p socketio_types.IdentifyPayload
	if err := socketio_types.Decode(room_constants.EventIdentify, args, &p); err != nil {
		return err
	}
	return s.bind(p.Token)
}

// heartbeat refreshes presence. It never broadcasts to the room.
func (s *Session) heartbeat(args []any) error {
	var p socketio_types.HeartbeatPayload
	if err := socketio_types.DecodeOptional(room_constants.EventHeartbeat, args, &p); err != nil {
		return err
	}
	// an evicted connection stays evicted; the client has to reconnect
	if !s.h.Tracker.Heartbeat(s.conn.ID()) {
		return apperr.Forbidden(apperr.CodeNotIdentified, "connection expired, reconnect and identify again")
	}
	if user := s.UserID(); user != "" && p.RoomCode != "" {
		code, err := normalize(p.RoomCode)
		if err != nil {
			return err
		}
		if err := s.h.Registry.Ping(code, user); err != nil {
			return err
		}
	}
	s.conn.Emit(room_constants.EventHeartbeatAck, gin.H{"at": s.h.now().UTC()})
	return nil
}

func (s *Session) createRoom(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.CreateRoomPayload
	if err := socketio_types.DecodeOptional(room_constants.EventCreateRoom, args, &p); err != nil {
		return err
	}
	name := p.DisplayName
	if name == "" {
		name = s.displayName()
	}
	summary, err := s.h.Registry.CreateRoom(user, s.conn.ID(), models.RoomSettings{
		Name:         p.Name,
		Visibility:   models.Visibility(p.Visibility),
		MaxMembers:   p.MaxPlayers,
		StreamerMode: p.StreamerMode,
		Passcode:     p.Passcode,
		DisplayName:  name,
	})
	if err != nil {
		return err
	}
	s.subscribe(summary.Code)
	s.conn.Emit(room_constants.EventRoomCreated, gin.H{"room_code": summary.Code, "room": summary})
	return nil
}

func (s *Session) joinRoom(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.JoinRoomPayload
	if err := socketio_types.Decode(room_constants.EventJoinRoom, args, &p); err != nil {
		return err
	}
	name := p.DisplayName
	if name == "" {
		name = s.displayName()
	}
	summary, err := s.h.Registry.JoinRoom(p.RoomCode, user, name, p.Passcode, s.conn.ID())
	if err != nil {
		return err
	}
	s.subscribe(summary.Code)
	s.conn.Emit(room_constants.EventRoomJoined, gin.H{"room_code": summary.Code, "room": summary})
	return nil
}

func (s *Session) leaveRoom(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.RoomPayload
	if err := socketio_types.Decode(room_constants.EventLeaveRoom, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	if err := s.h.Registry.LeaveRoom(code, user); err != nil {
		return err
	}
	s.unsubscribe(code)
	return nil
}

// joinSocketRoom subscribes an existing member's new connection, which is
// how a client reconnects after a page reload
func (s *Session) joinSocketRoom(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.RoomPayload
	if err := socketio_types.Decode(room_constants.EventJoinSocketRoom, args, &p); err != nil {
		return err
	}
	summary, err := s.h.Registry.AttachConnection(p.RoomCode, user, s.conn.ID())
	if err != nil {
		return err
	}
	s.subscribe(summary.Code)
	s.conn.Emit(room_constants.EventStatusSync, gin.H{
		"room_code": summary.Code,
		"status":    summary.Status,
		"room":      summary,
	})
	return nil
}

func (s *Session) publicRooms(args []any) error {
	s.conn.Emit(room_constants.EventPublicRoomsList, gin.H{"rooms": s.h.Registry.PublicRooms()})
	return nil
}

func (s *Session) selectGame(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.SelectGamePayload
	if err := socketio_types.Decode(room_constants.EventSelectGame, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.SelectGame(code, user, p.GameID)
}

func (s *Session) startGame(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.RoomPayload
	if err := socketio_types.Decode(room_constants.EventStartGame, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.StartGame(code, user)
}

func (s *Session) deleteRoom(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.RoomPayload
	if err := socketio_types.Decode(room_constants.EventDeleteRoom, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.DeleteRoom(code, user)
}

func (s *Session) transferHost(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.TargetPayload
	if err := socketio_types.Decode(room_constants.EventTransferHost, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.TransferHost(code, user, p.TargetUserID)
}

func (s *Session) kickPlayer(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.TargetPayload
	if err := socketio_types.Decode(room_constants.EventKickPlayer, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.KickPlayer(code, user, p.TargetUserID)
}

func (s *Session) toggleReady(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.RoomPayload
	if err := socketio_types.Decode(room_constants.EventToggleReady, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	_, err = s.h.Registry.ToggleReady(code, user)
	return err
}

func (s *Session) changeStatus(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.ChangeStatusPayload
	if err := socketio_types.Decode(room_constants.EventChangeRoomStatus, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.ChangeStatus(code, user, models.RoomStatus(p.Status))
}

func (s *Session) updateLocation(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.UpdateLocationPayload
	if err := socketio_types.Decode(room_constants.EventUpdateLocation, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.UpdateLocation(code, user, models.Location(p.Location))
}

func (s *Session) chat(args []any) error {
	user, err := s.requireIdentity()
	if err != nil {
		return err
	}
	var p socketio_types.ChatPayload
	if err := socketio_types.Decode(room_constants.EventChatMessage, args, &p); err != nil {
		return err
	}
	code, err := normalize(p.RoomCode)
	if err != nil {
		return err
	}
	return s.h.Registry.Chat(code, user, p.Message)
}

func normalize(code string) (string, error) {
	return rooms.NormalizeCode(code)
}
