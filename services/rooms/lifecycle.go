package rooms

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/models"
	"Gamebuddies/services/presence"
	"Gamebuddies/utils/apperr"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// AttachConnection binds a live connection to an existing member. A member
// coming back inside the grace period gets its prior location back.
func (r *Registry) AttachConnection(code, userID, connID string) (models.RoomSummary, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return models.RoomSummary{}, err
	}
	var summary models.RoomSummary
	err = r.mutate(code, func(a *roomActor) error {
		m := a.room.Member(userID)
		if m == nil {
			return apperr.NotAMember(code, userID)
		}
		if t, ok := a.graceTimers[userID]; ok {
			t.Stop()
			delete(a.graceTimers, userID)
		}
		a.graceSeq[userID]++

		now := r.now()
		wasGone := m.Location == models.LocationDisconnected
		m.ConnectionID = connID
		m.LastPing = now
		m.DisconnectedAt = time.Time{}
		if wasGone {
			m.Location = m.PriorLocation
			if !m.Location.Valid() || m.Location == models.LocationDisconnected {
				m.Location = models.LocationLobby
			}
		}
		a.room.Touch(now)

		summary = a.room.Summary()
		r.out.ToRoom(code, room_constants.EventPlayerStatusUpdated, map[string]any{
			"room_code": code,
			"user_id":   userID,
			"location":  m.Location,
			"ready":     m.Ready,
			"connected": true,
			"room":      summary,
		})
		r.log.WithFields(logrus.Fields{"room": code, "user": userID, "conn": connID, "restored": wasGone}).
			Debug("[RECONNECT] connection attached")
		return nil
	})
	return summary, err
}

// ConnectionLost is called by the presence tracker once a connection is gone.
// The member keeps its place until the grace period runs out.
func (r *Registry) ConnectionLost(conn presence.Connection) {
	if conn.UserID == "" {
		return
	}
	code := conn.RoomCode
	if code == "" {
		var ok bool
		if code, ok = r.RoomOf(conn.UserID); !ok {
			return
		}
	}
	err := r.do(code, func(a *roomActor) error {
		m := a.room.Member(conn.UserID)
		// a newer connection already took over
		if m == nil || m.ConnectionID != conn.ID {
			return nil
		}
		m.ConnectionID = ""
		m.DisconnectedAt = r.now()
		r.startGrace(a, conn.UserID)
		r.publish(a)
		return nil
	})
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		r.log.WithFields(logrus.Fields{"room": code, "user": conn.UserID}).WithError(err).Warn("[DISCONNECT] could not start grace period")
	}
}

func (r *Registry) startGrace(a *roomActor, userID string) {
	if t, ok := a.graceTimers[userID]; ok {
		t.Stop()
	}
	a.graceSeq[userID]++
	seq := a.graceSeq[userID]
	a.graceTimers[userID] = time.AfterFunc(r.cfg.DisconnectGrace, func() {
		a.enqueue(func() {
			if a.deleted || a.graceSeq[userID] != seq {
				return
			}
			delete(a.graceTimers, userID)
			r.expireGrace(a, userID)
		})
	})
	r.log.WithFields(logrus.Fields{"room": a.room.Code, "user": userID, "grace": r.cfg.DisconnectGrace}).
		Debug("[DISCONNECT] grace period started")
}

// expireGrace marks a member that never came back as disconnected
func (r *Registry) expireGrace(a *roomActor, userID string) {
	room := a.room
	m := room.Member(userID)
	if m == nil || m.Connected() {
		return
	}
	if m.Location != models.LocationDisconnected {
		m.PriorLocation = m.Location
		m.Location = models.LocationDisconnected
	}
	room.Touch(r.now())

	r.out.ToRoom(room.Code, room_constants.EventPlayerDisconnected, map[string]any{
		"room_code": room.Code,
		"user_id":   userID,
		"room":      room.Summary(),
	})
	r.log.WithFields(logrus.Fields{"room": room.Code, "user": userID}).Info("[DISCONNECT] grace period expired")

	if room.HostID == userID {
		if next := r.nextHost(room); next != nil && r.connected(next) {
			r.transferHost(a, userID, next, "host disconnected")
		}
	}
	r.settle(a)
	r.publish(a)
}

// ExpireIdle deletes rooms that sat idle past the idle timeout while waiting
// for players or abandoned
func (r *Registry) ExpireIdle(now time.Time) []string {
	var expired []string
	for _, code := range r.codes() {
		_ = r.do(code, func(a *roomActor) error {
			room := a.room
			if room.Status != models.StatusWaitingForPlayers && room.Status != models.StatusAbandoned {
				return nil
			}
			if now.Sub(room.LastActivity) <= r.cfg.IdleTimeout {
				return nil
			}
			r.remove(a, "idle")
			expired = append(expired, room.Code)
			return nil
		})
	}
	return expired
}

// PruneDisconnected removes members that have been disconnected for longer
// than the eviction threshold and returns how many were removed
func (r *Registry) PruneDisconnected(now time.Time) int {
	var pruned int
	for _, code := range r.codes() {
		_ = r.do(code, func(a *roomActor) error {
			var gone []string
			for _, m := range a.room.Members {
				if m.Location == models.LocationDisconnected && !m.DisconnectedAt.IsZero() &&
					now.Sub(m.DisconnectedAt) > r.cfg.MemberEvictAfter {
					gone = append(gone, m.UserID)
				}
			}
			for _, userID := range gone {
				r.dropMember(a, userID, room_constants.EventPlayerLeft, room_constants.LogPlayerLeft, "disconnected")
			}
			if len(gone) > 0 {
				pruned += len(gone)
				r.settle(a)
				r.publish(a)
			}
			return nil
		})
	}
	return pruned
}

// DeletePending removes the rooms that were emptied since the last pass
func (r *Registry) DeletePending() []string {
	r.mu.Lock()
	codes := make([]string, 0, len(r.pendingDelete))
	for code := range r.pendingDelete {
		codes = append(codes, code)
	}
	r.mu.Unlock()
	sort.Strings(codes)

	var deleted []string
	for _, code := range codes {
		err := r.do(code, func(a *roomActor) error {
			if len(a.room.Members) > 0 {
				r.mu.Lock()
				delete(r.pendingDelete, code)
				r.mu.Unlock()
				return nil
			}
			r.remove(a, "abandoned")
			deleted = append(deleted, code)
			return nil
		})
		if apperr.KindOf(err) == apperr.KindNotFound {
			r.mu.Lock()
			delete(r.pendingDelete, code)
			r.mu.Unlock()
		}
	}
	return deleted
}

// Changes is everything that happened since the last durability flush
type Changes struct {
	Rooms   []models.RoomSummary
	Deleted []string
	Events  []models.RoomEvent
}

func (c Changes) Empty() bool {
	return len(c.Rooms) == 0 && len(c.Deleted) == 0 && len(c.Events) == 0
}

// DrainChanges hands the pending deltas to the caller and resets them
func (r *Registry) DrainChanges() Changes {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c Changes
	for _, s := range r.dirty {
		c.Rooms = append(c.Rooms, s)
	}
	for code := range r.deleted {
		c.Deleted = append(c.Deleted, code)
	}
	c.Events = r.events
	r.dirty = make(map[string]models.RoomSummary)
	r.deleted = make(map[string]struct{})
	r.events = nil

	sortByCreation(c.Rooms)
	sort.Strings(c.Deleted)
	return c
}

// Requeue puts back deltas a flush could not write. Newer state wins over the
// requeued copy.
func (r *Registry) Requeue(c Changes) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range c.Rooms {
		if _, newer := r.dirty[s.Code]; newer {
			continue
		}
		if _, live := r.rooms[s.Code]; !live {
			continue
		}
		r.dirty[s.Code] = s
	}
	for _, code := range c.Deleted {
		if _, live := r.rooms[code]; live {
			continue
		}
		r.deleted[code] = struct{}{}
	}
	if len(c.Events) > 0 {
		r.events = append(append([]models.RoomEvent(nil), c.Events...), r.events...)
		if over := len(r.events) - maxPendingEvents; over > 0 {
			r.events = r.events[over:]
		}
	}
}

func sortByCreation(rooms []models.RoomSummary) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Code < rooms[j].Code
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
}
