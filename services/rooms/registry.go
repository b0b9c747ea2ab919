// Package rooms holds the in-memory authoritative table of rooms and their
// members.
//
// Every room is its own serialization domain: one goroutine per room drains a
// task queue and every operation, timer and re-check runs as a task on it. No
// two mutations of the same room interleave, and nothing outside the room's
// goroutine touches its state.
package rooms

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/models"
	"Gamebuddies/services/reconcile"
	"Gamebuddies/utils/apperr"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

// Broadcaster fans events out to the connections subscribed to a room. Calls
// are fire-and-forget.
type Broadcaster interface {
	ToRoom(roomCode, event string, payload any)
	ToConnection(connID, event string, payload any)
	// Leave drops a connection's subscription to a room
	Leave(connID, roomCode string)
}

// Notifier is the outbound notification hook for collaborators
type Notifier interface {
	Notify(event models.RoomEvent)
}

// Connections answers whether a connection id is still live
type Connections interface {
	Alive(connID string) bool
}

type Config struct {
	DisconnectGrace  time.Duration
	MemberEvictAfter time.Duration
	IdleTimeout      time.Duration
	Reconcile        reconcile.Config
}

const (
	taskQueueSize    = 64
	maxSettleSteps   = 4
	maxPendingEvents = 10000
)

type roomActor struct {
	room  *models.Room
	state reconcile.State

	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	graceTimers map[string]*time.Timer
	graceSeq    map[string]uint64
	recheck     *time.Timer
	recheckSeq  uint64
	deleted     bool
}

func (a *roomActor) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.quit:
			return
		case task := <-a.tasks:
			task()
		}
	}
}

// enqueue is used by timers; it never blocks past the room's lifetime
func (a *roomActor) enqueue(task func()) {
	select {
	case a.tasks <- task:
	case <-a.quit:
	}
}

func (a *roomActor) stop() {
	a.stopOnce.Do(func() { close(a.quit) })
}

func (a *roomActor) stopTimers() {
	for user, t := range a.graceTimers {
		t.Stop()
		delete(a.graceTimers, user)
	}
	if a.recheck != nil {
		a.recheck.Stop()
		a.recheck = nil
	}
}

type Registry struct {
	cfg      Config
	rec      *reconcile.Reconciler
	out      Broadcaster
	notifier Notifier
	conns    Connections
	log      *logrus.Entry

	now     func() time.Time
	newCode func() (string, error)

	mu            sync.RWMutex
	rooms         map[string]*roomActor
	userRoom      map[string]string
	summaries     map[string]models.RoomSummary
	dirty         map[string]models.RoomSummary
	deleted       map[string]struct{}
	pendingDelete map[string]struct{}
	events        []models.RoomEvent
	closed        bool
}

func New(cfg Config, out Broadcaster, notifier Notifier, conns Connections) *Registry {
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = room_constants.DefaultDisconnectGrace
	}
	if cfg.MemberEvictAfter <= 0 {
		cfg.MemberEvictAfter = room_constants.DefaultMemberEvictAfter
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = room_constants.DefaultRoomIdleTimeout
	}
	return &Registry{
		cfg:      cfg,
		rec:      reconcile.New(cfg.Reconcile),
		out:      out,
		notifier: notifier,
		conns:    conns,
		log:      logrus.WithField("component", "rooms"),
		now:      time.Now,
		newCode: func() (string, error) {
			return gonanoid.Generate(room_constants.CodeAlphabet, room_constants.CodeLength)
		},
		rooms:         make(map[string]*roomActor),
		userRoom:      make(map[string]string),
		summaries:     make(map[string]models.RoomSummary),
		dirty:         make(map[string]models.RoomSummary),
		deleted:       make(map[string]struct{}),
		pendingDelete: make(map[string]struct{}),
	}
}

// NormalizeCode upper-cases a room code and checks that it is alphanumeric.
// Generated codes avoid look-alike characters but any alphanumeric code is accepted.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != room_constants.CodeLength {
		return "", apperr.Validation(apperr.CodeInvalidRoomCode, "room code must be 6 characters").
			WithDetail("room_code", code)
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", apperr.Validation(apperr.CodeInvalidRoomCode, "room code contains invalid characters").
				WithDetail("room_code", code)
		}
	}
	return code, nil
}

func (r *Registry) actor(code string) *roomActor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[code]
}

func (r *Registry) codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// RoomOf returns the code of the room a user currently belongs to
func (r *Registry) RoomOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.userRoom[userID]
	return code, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// do runs fn on the room's goroutine and waits for its result
func (r *Registry) do(code string, fn func(a *roomActor) error) error {
	a := r.actor(code)
	if a == nil {
		return apperr.RoomNotFound(code)
	}
	errc := make(chan error, 1)
	task := func() {
		if a.deleted {
			errc <- apperr.RoomNotFound(code)
			return
		}
		errc <- fn(a)
	}
	select {
	case a.tasks <- task:
	case <-a.done:
		return apperr.RoomNotFound(code)
	}
	select {
	case err := <-errc:
		return err
	case <-a.done:
		select {
		case err := <-errc:
			return err
		default:
			return apperr.RoomNotFound(code)
		}
	}
}

// mutate runs fn as a room task and, when it succeeds, re-evaluates the room
// status and publishes the new snapshot
func (r *Registry) mutate(code string, fn func(a *roomActor) error) error {
	return r.do(code, func(a *roomActor) error {
		if err := fn(a); err != nil {
			return err
		}
		if a.deleted {
			return nil
		}
		r.settle(a)
		r.publish(a)
		return nil
	})
}

func (r *Registry) start(room *models.Room) *roomActor {
	a := &roomActor{
		room:        room,
		tasks:       make(chan func(), taskQueueSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		graceTimers: make(map[string]*time.Timer),
		graceSeq:    make(map[string]uint64),
	}
	go a.loop()
	return a
}

// settle runs the reconciler until the room is stable. Only this path changes
// a room's status.
func (r *Registry) settle(a *roomActor) {
	now := r.now()
	room := a.room
	for i := 0; i < maxSettleSteps; i++ {
		d := r.rec.Evaluate(room, &a.state, now)
		if !d.Changed() {
			r.scheduleRecheck(a, d.RecheckIn)
			return
		}
		r.rec.Apply(room, &a.state, d, now)

		payload := map[string]any{
			"room_code": room.Code,
			"from":      d.From,
			"to":        d.To,
			"reason":    d.Reason,
			"room":      room.Summary(),
		}
		kind, event := room_constants.LogStatusChanged, room_constants.EventStatusChanged
		if d.Outcome == reconcile.ConflictResolved {
			kind, event = room_constants.LogConflictResolved, room_constants.EventStatusConflictResolve
		}
		r.log.WithFields(logrus.Fields{"room": room.Code, "from": d.From, "to": d.To, "outcome": d.Outcome}).
			Infof("[STATUS] %s", d.Reason)
		r.out.ToRoom(room.Code, event, payload)
		r.record(room.Code, kind, "", map[string]any{"from": d.From, "to": d.To, "reason": d.Reason})

		if d.To == models.StatusAbandoned && len(room.Members) == 0 {
			r.mu.Lock()
			r.pendingDelete[room.Code] = struct{}{}
			r.mu.Unlock()
		}
	}
	r.log.WithField("room", room.Code).Warn("[STATUS] reconciler did not settle")
}

func (r *Registry) scheduleRecheck(a *roomActor, in time.Duration) {
	if a.recheck != nil {
		a.recheck.Stop()
		a.recheck = nil
	}
	a.recheckSeq++
	if in <= 0 {
		return
	}
	seq := a.recheckSeq
	a.recheck = time.AfterFunc(in, func() {
		a.enqueue(func() {
			// a newer evaluation superseded this one
			if a.deleted || seq != a.recheckSeq {
				return
			}
			a.recheck = nil
			r.settle(a)
			r.publish(a)
		})
	})
}

// publish stores the room snapshot for read-through queries and marks it for
// the next durability flush
func (r *Registry) publish(a *roomActor) {
	summary := a.room.Summary()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[summary.Code] = summary
	r.dirty[summary.Code] = summary
}

func (r *Registry) record(code, kind, userID string, payload map[string]any) {
	ev := models.RoomEvent{
		ID:       uuid.NewString(),
		RoomCode: code,
		Kind:     kind,
		UserID:   userID,
		Payload:  payload,
		At:       r.now(),
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	if over := len(r.events) - maxPendingEvents; over > 0 {
		r.log.WithField("dropped", over).Warn("room event backlog full, dropping oldest")
		r.events = append([]models.RoomEvent(nil), r.events[over:]...)
	}
	r.mu.Unlock()

	if r.notifier != nil {
		r.notifier.Notify(ev)
	}
}

// remove deletes a room. It runs on the room's own goroutine, which exits
// once the current task returns.
func (r *Registry) remove(a *roomActor, reason string) {
	code := a.room.Code
	a.deleted = true
	a.stopTimers()

	r.mu.Lock()
	delete(r.rooms, code)
	delete(r.summaries, code)
	delete(r.dirty, code)
	delete(r.pendingDelete, code)
	r.deleted[code] = struct{}{}
	for _, m := range a.room.Members {
		if r.userRoom[m.UserID] == code {
			delete(r.userRoom, m.UserID)
		}
	}
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"room": code, "reason": reason}).Info("[DELETE] room removed")
	r.out.ToRoom(code, room_constants.EventRoomLeft, map[string]any{"room_code": code, "reason": reason})
	for _, m := range a.room.Members {
		if m.ConnectionID != "" {
			r.out.Leave(m.ConnectionID, code)
		}
	}
	r.record(code, room_constants.LogRoomDeleted, "", map[string]any{"reason": reason})
	a.stop()
}

// Close stops every room goroutine and timer. Room state is kept so a final
// flush can still drain it.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	actors := make([]*roomActor, 0, len(r.rooms))
	for _, a := range r.rooms {
		actors = append(actors, a)
	}
	r.mu.Unlock()

	for _, a := range actors {
		a.stop()
		<-a.done
		a.stopTimers()
	}
	r.log.WithField("rooms", len(actors)).Info("room registry closed")
}
