package socketio_types

import (
	"Gamebuddies/utils/apperr"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// One struct per inbound event. Unknown fields are rejected and the binding
// tags are checked with gin's validator.

type CreateRoomPayload struct {
	Name         string `json:"name" binding:"max=40"`
	Visibility   string `json:"visibility" binding:"omitempty,oneof=public private"`
	MaxPlayers   int    `json:"max_players" binding:"omitempty,min=2,max=16"`
	StreamerMode bool   `json:"streamer_mode"`
	Passcode     string `json:"passcode" binding:"omitempty,max=64"`
	DisplayName  string `json:"display_name" binding:"max=40"`
}

type JoinRoomPayload struct {
	RoomCode    string `json:"room_code" binding:"required"`
	DisplayName string `json:"display_name" binding:"max=40"`
	Passcode    string `json:"passcode" binding:"max=64"`
}

// RoomPayload carries only a room code: leave-room, join-socket-room,
// start-game and toggle-ready
type RoomPayload struct {
	RoomCode string `json:"room_code" binding:"required"`
}

type SelectGamePayload struct {
	RoomCode string `json:"room_code" binding:"required"`
	GameID   string `json:"game_id" binding:"required,max=64"`
}

// TargetPayload is used by transfer-host and kick-player
type TargetPayload struct {
	RoomCode     string `json:"room_code" binding:"required"`
	TargetUserID string `json:"target_user_id" binding:"required"`
}

type ChangeStatusPayload struct {
	RoomCode string `json:"room_code" binding:"required"`
	Status   string `json:"status" binding:"required"`
}

type UpdateLocationPayload struct {
	RoomCode string `json:"room_code" binding:"required"`
	Location string `json:"location" binding:"required,oneof=lobby game"`
}

type HeartbeatPayload struct {
	RoomCode string `json:"room_code"`
}

type ChatPayload struct {
	RoomCode string `json:"room_code" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

type IdentifyPayload struct {
	Token string `json:"token" binding:"required"`
}

// Decode reads the first event argument into into. The argument may be an
// already decoded object or a JSON string.
func Decode(event string, args []any, into any) error {
	if len(args) == 0 || args[0] == nil {
		return apperr.InvalidPayload(event, "missing payload")
	}
	var raw []byte
	switch v := args[0].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return apperr.InvalidPayload(event, "payload is not an object")
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return apperr.InvalidPayload(event, "malformed payload: "+err.Error())
	}
	if err := binding.Validator.ValidateStruct(into); err != nil {
		return apperr.InvalidPayload(event, describe(err))
	}
	return nil
}

// DecodeOptional is Decode for events whose payload may be omitted
func DecodeOptional(event string, args []any, into any) error {
	if len(args) == 0 || args[0] == nil {
		return nil
	}
	if _, isFunc := args[0].(func([]any, error)); isFunc {
		return nil
	}
	return Decode(event, args, into)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
