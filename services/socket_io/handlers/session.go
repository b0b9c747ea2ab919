package handlers

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/middleware"
	"Gamebuddies/services/presence"
	"Gamebuddies/services/rooms"
	socketio_types "Gamebuddies/services/socket_io/types"
	"Gamebuddies/utils"
	"Gamebuddies/utils/apperr"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Connections is where sessions register their socket so the registry's
// broadcasts can reach it
type Connections interface {
	AddConnection(c socketio_types.Conn)
	RemoveConnection(connID string)
}

// Handler owns the per-event logic shared by every connection
type Handler struct {
	Registry *rooms.Registry
	Tracker  *presence.Tracker
	Identity middleware.IdentityResolver
	Conns    Connections

	log *logrus.Entry
	now func() time.Time
}

func New(registry *rooms.Registry, tracker *presence.Tracker, identity middleware.IdentityResolver, conns Connections) *Handler {
	return &Handler{
		Registry: registry,
		Tracker:  tracker,
		Identity: identity,
		Conns:    conns,
		log:      logrus.WithField("component", "socket"),
		now:      time.Now,
	}
}

// Session is one live connection and the identity bound to it
type Session struct {
	h    *Handler
	conn socketio_types.Conn

	mu       sync.Mutex
	identity middleware.Identity
}

type eventFunc func(s *Session, args []any) error

var events = map[string]eventFunc{
	room_constants.EventIdentify:         (*Session).identify,
	room_constants.EventHeartbeat:        (*Session).heartbeat,
	room_constants.EventCreateRoom:       (*Session).createRoom,
	room_constants.EventJoinRoom:         (*Session).joinRoom,
	room_constants.EventLeaveRoom:        (*Session).leaveRoom,
	room_constants.EventJoinSocketRoom:   (*Session).joinSocketRoom,
	room_constants.EventGetPublicRooms:   (*Session).publicRooms,
	room_constants.EventSelectGame:       (*Session).selectGame,
	room_constants.EventStartGame:        (*Session).startGame,
	room_constants.EventTransferHost:     (*Session).transferHost,
	room_constants.EventKickPlayer:       (*Session).kickPlayer,
	room_constants.EventToggleReady:      (*Session).toggleReady,
	room_constants.EventChangeRoomStatus: (*Session).changeStatus,
	room_constants.EventUpdateLocation:   (*Session).updateLocation,
	room_constants.EventChatMessage:      (*Session).chat,
	room_constants.EventDeleteRoom:       (*Session).deleteRoom,
}

// Events lists the inbound events a session understands
func Events() []string {
	out := make([]string, 0, len(events))
	for name := range events {
		out = append(out, name)
	}
	return out
}

// Connect registers a new connection. The handshake auth may already carry
// a bearer token under "authorization"; otherwise the client has to send
// identify before touching rooms.
func (h *Handler) Connect(conn socketio_types.Conn, auth any) *Session {
	s := &Session{h: h, conn: conn}
	h.Conns.AddConnection(conn)
	h.Tracker.Open(conn.ID())

	if token := handshakeToken(auth); token != "" {
		if err := s.bind(token); err != nil {
			s.fail(room_constants.EventIdentify, err)
		}
	}
	h.log.WithFields(logrus.Fields{"conn": conn.ID(), "user": s.UserID()}).Debug("[CONNECT] connection opened")
	return s
}

func handshakeToken(auth any) string {
	m, ok := auth.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"authorization", "token"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (s *Session) ConnID() string { return s.conn.ID() }

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.UserID
}

func (s *Session) displayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.DisplayName
}

// Handle runs one inbound event. Failures are sent back to this connection
// only, as an error event with a stable code.
func (s *Session) Handle(event string, args []any) {
	fn, ok := events[event]
	if !ok {
		s.fail(event, apperr.Validation(apperr.CodeInvalidPayload, "unknown event").WithDetail("event", event))
		return
	}
	if err := fn(s, args); err != nil {
		s.fail(event, err)
	}
}

// Disconnect forgets the connection. The member keeps its seat until the
// room's grace period runs out.
func (s *Session) Disconnect(reason string) {
	s.h.Conns.RemoveConnection(s.conn.ID())
	s.h.Tracker.Disconnect(s.conn.ID())

	entry := s.h.log.WithFields(logrus.Fields{"conn": s.conn.ID(), "user": s.UserID(), "reason": reason})
	if utils.IsNoiseReason(reason) {
		entry.Debug("[DISCONNECT] client went away")
	} else {
		entry.Info("[DISCONNECT] connection closed")
	}
}

func (s *Session) fail(event string, err error) {
	e := apperr.As(err)
	s.conn.Emit(room_constants.EventError, gin.H{
		"event":   event,
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	})

	entry := s.h.log.WithFields(logrus.Fields{"conn": s.conn.ID(), "user": s.UserID(), "event": event, "code": e.Code})
	switch {
	case utils.IsNetworkNoise(err):
		entry.WithError(err).Debug("event failed on a dead connection")
	case e.Kind == apperr.KindTransient || e.Kind == apperr.KindFatal:
		entry.WithError(err).Error("event failed")
	default:
		entry.Debug("event rejected")
	}
}

func (s *Session) requireIdentity() (string, error) {
	user := s.UserID()
	if user == "" {
		return "", apperr.Forbidden(apperr.CodeNotIdentified, "identify before using rooms")
	}
	return user, nil
}

// bind resolves a bearer token and ties the connection to its user
func (s *Session) bind(token string) error {
	id, err := s.h.Identity.Resolve(token)
	if err != nil {
		return err
	}
	if err := s.h.Tracker.Register(s.conn.ID(), id.UserID); err != nil {
		return err
	}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	s.conn.Emit(room_constants.EventIdentified, gin.H{"user_id": id.UserID, "role": id.Role})
	s.h.log.WithFields(logrus.Fields{"conn": s.conn.ID(), "user": id.UserID}).Info("[IDENTIFY] connection identified")
	return nil
}

// subscribe puts the connection in the room's broadcast group
func (s *Session) subscribe(code string) {
	s.conn.Join(code)
	s.h.Tracker.BindRoom(s.conn.ID(), code)
}

func (s *Session) unsubscribe(code string) {
	s.conn.Leave(code)
	if c, ok := s.h.Tracker.Get(s.conn.ID()); ok && c.RoomCode == code {
		s.h.Tracker.BindRoom(s.conn.ID(), "")
	}
}
