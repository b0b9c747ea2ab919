package socketio_types

import (
	"Gamebuddies/services/presence"
	"sync"

	"github.com/zishang520/socket.io/v2/socket"
)

// Conn is the part of a socket.io connection the handlers use
type Conn interface {
	ID() string
	Emit(event string, payload any)
	Join(room string)
	Leave(room string)
	Close()
}

type socketConn struct {
	s *socket.Socket
}

// WrapSocket adapts a socket.io client to Conn
func WrapSocket(s *socket.Socket) Conn {
	return socketConn{s: s}
}

func (c socketConn) ID() string                     { return string(c.s.Id()) }
func (c socketConn) Emit(event string, payload any) { c.s.Emit(event, payload) }
func (c socketConn) Join(room string)               { c.s.Join(socket.Room(room)) }
func (c socketConn) Leave(room string)              { c.s.Leave(socket.Room(room)) }
func (c socketConn) Close()                         { c.s.Disconnect(true) }

// SocketServer holds the socket.io server and the live connections by id.
// It is the room registry's Broadcaster.
type SocketServer struct {
	Sio_server *socket.Server
	Tracker    *presence.Tracker

	connections map[string]Conn
	mutex       sync.RWMutex
}

func NewSocketServer(server *socket.Server, tracker *presence.Tracker) *SocketServer {
	return &SocketServer{
		Sio_server:  server,
		Tracker:     tracker,
		connections: make(map[string]Conn),
	}
}

func (s *SocketServer) AddConnection(c Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connections[c.ID()] = c
}

func (s *SocketServer) RemoveConnection(connID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.connections, connID)
}

func (s *SocketServer) GetConnection(connID string) (Conn, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	c, ok := s.connections[connID]
	return c, ok
}

func (s *SocketServer) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// ToRoom emits to every connection subscribed to the room code
func (s *SocketServer) ToRoom(code, event string, payload any) {
	if s.Sio_server == nil {
		return
	}
	s.Sio_server.To(socket.Room(code)).Emit(event, payload)
}

func (s *SocketServer) ToConnection(connID, event string, payload any) {
	if c, ok := s.GetConnection(connID); ok {
		c.Emit(event, payload)
	}
}

// Leave unsubscribes a connection from a room's broadcasts
func (s *SocketServer) Leave(connID, roomCode string) {
	if c, ok := s.GetConnection(connID); ok {
		c.Leave(roomCode)
	}
	if s.Tracker != nil {
		s.Tracker.Unsubscribe(connID, roomCode)
	}
}

// CloseConnection drops the underlying socket, used when presence evicts a
// connection whose heartbeat went quiet
func (s *SocketServer) CloseConnection(connID string) {
	if c, ok := s.GetConnection(connID); ok {
		c.Close()
	}
}
