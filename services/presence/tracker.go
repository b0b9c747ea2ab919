package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"Gamebuddies/utils/apperr"

	"github.com/sirupsen/logrus"
)

// Connection is a copy of one live channel's presence record
type Connection struct {
	ID            string
	UserID        string
	RoomCode      string
	LastHeartbeat time.Time
	Topics        []string
}

// LossHandler is told about every connection that goes away, either through an
// explicit disconnect or a heartbeat timeout, so the owning room can start its
// grace period.
type LossHandler interface {
	ConnectionLost(conn Connection)
}

type LossHandlerFunc func(conn Connection)

func (f LossHandlerFunc) ConnectionLost(conn Connection) { f(conn) }

type connection struct {
	userID        string
	roomCode      string
	lastHeartbeat time.Time
	topics        map[string]struct{}
}

func (c *connection) copy(id string) Connection {
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return Connection{
		ID:            id,
		UserID:        c.userID,
		RoomCode:      c.roomCode,
		LastHeartbeat: c.lastHeartbeat,
		Topics:        topics,
	}
}

// Tracker maps live connections to users and rooms and evicts the ones whose
// heartbeat went quiet.
type Tracker struct {
	mu       sync.RWMutex
	conns    map[string]*connection
	timeout  time.Duration
	interval time.Duration
	onLost   LossHandler
	now      func() time.Time
	log      *logrus.Entry
}

func NewTracker(timeout, interval time.Duration) *Tracker {
	return &Tracker{
		conns:    make(map[string]*connection),
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		log:      logrus.WithField("component", "presence"),
	}
}

// SetLossHandler installs the callback used for lost connections. It is set
// after construction because the room registry itself depends on the tracker.
func (t *Tracker) SetLossHandler(h LossHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = h
}

// Open records a freshly opened channel that has not identified yet
func (t *Tracker) Open(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[connID]; ok {
		return
	}
	t.conns[connID] = &connection{
		lastHeartbeat: t.now(),
		topics:        make(map[string]struct{}),
	}
}

// Register binds a channel to an identified user. Registering the same pair
// twice is a no-op; rebinding a channel to a different user is rejected.
func (t *Tracker) Register(connID, userID string) error {
	if userID == "" {
		return apperr.Validation(apperr.CodeNotIdentified, "user id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		c = &connection{topics: make(map[string]struct{})}
		t.conns[connID] = c
	}
	if c.userID != "" && c.userID != userID {
		return apperr.Validation(apperr.CodeForbidden, "connection is already bound to another user").
			WithDetail("connection_id", connID)
	}
	c.userID = userID
	c.lastHeartbeat = t.now()
	return nil
}

// Heartbeat refreshes the last-seen time. Unknown ids are ignored: the
// connection was already evicted and the client has not noticed yet.
func (t *Tracker) Heartbeat(connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return false
	}
	c.lastHeartbeat = t.now()
	return true
}

// BindRoom sets the room a connection belongs to and subscribes it to that
// room's topic. An empty code clears the binding.
func (t *Tracker) BindRoom(connID, roomCode string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return false
	}
	if c.roomCode != "" {
		delete(c.topics, c.roomCode)
	}
	c.roomCode = roomCode
	if roomCode != "" {
		c.topics[roomCode] = struct{}{}
	}
	return true
}

func (t *Tracker) Subscribe(connID, topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return false
	}
	c.topics[topic] = struct{}{}
	return true
}

// Unsubscribe drops a topic. Dropping the bound room's topic also clears the
// room binding.
func (t *Tracker) Unsubscribe(connID, topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[connID]; ok {
		delete(c.topics, topic)
		if c.roomCode == topic {
			c.roomCode = ""
		}
	}
}

// Disconnect forgets a connection immediately. The member it belonged to is
// not removed here; the loss handler starts the room's grace period instead.
func (t *Tracker) Disconnect(connID string) (Connection, bool) {
	t.mu.Lock()
	c, ok := t.conns[connID]
	if ok {
		delete(t.conns, connID)
	}
	handler := t.onLost
	t.mu.Unlock()

	if !ok {
		return Connection{}, false
	}
	lost := c.copy(connID)
	t.log.WithFields(logrus.Fields{"conn": connID, "user": lost.UserID, "room": lost.RoomCode}).
		Debug("[DISCONNECT] connection closed")
	if handler != nil {
		handler.ConnectionLost(lost)
	}
	return lost, true
}

// Sweep evicts every connection whose last heartbeat is older than the
// timeout and returns the evicted ids.
func (t *Tracker) Sweep(now time.Time) []string {
	t.mu.Lock()
	var evicted []Connection
	for id, c := range t.conns {
		if now.Sub(c.lastHeartbeat) > t.timeout {
			evicted = append(evicted, c.copy(id))
			delete(t.conns, id)
		}
	}
	handler := t.onLost
	t.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, lost := range evicted {
		ids = append(ids, lost.ID)
		t.log.WithFields(logrus.Fields{"conn": lost.ID, "user": lost.UserID, "room": lost.RoomCode}).
			Info("[HEARTBEAT-TIMEOUT] evicting silent connection")
		if handler != nil {
			handler.ConnectionLost(lost)
		}
	}
	sort.Strings(ids)
	return ids
}

// Run sweeps on the configured interval until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	t.log.WithField("interval", t.interval).Info("presence sweep started")
	for {
		select {
		case <-ctx.Done():
			t.log.Info("presence sweep stopped")
			return
		case <-ticker.C:
			t.Sweep(t.now())
		}
	}
}

func (t *Tracker) Get(connID string) (Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return c.copy(connID), true
}

// UserOf returns the identified user of a connection, or "" if there is none
func (t *Tracker) UserOf(connID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.conns[connID]; ok {
		return c.userID
	}
	return ""
}

func (t *Tracker) Alive(connID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[connID]
	return ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Clear drops every record without notifying the loss handler. Used on shutdown.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns = make(map[string]*connection)
}
