package rooms

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/models"
	"Gamebuddies/services/reconcile"
	"Gamebuddies/utils/apperr"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func validateSettings(s *models.RoomSettings) error {
	s.Name = strings.TrimSpace(s.Name)
	if utf8.RuneCountInString(s.Name) > room_constants.MaxNameRunes {
		return apperr.Validation(apperr.CodeInvalidPayload, "room name is too long").
			WithDetail("max_length", room_constants.MaxNameRunes)
	}
	s.DisplayName = strings.TrimSpace(s.DisplayName)
	if utf8.RuneCountInString(s.DisplayName) > room_constants.MaxNameRunes {
		return apperr.Validation(apperr.CodeInvalidPayload, "player name is too long").
			WithDetail("max_length", room_constants.MaxNameRunes)
	}
	if s.MaxMembers == 0 {
		s.MaxMembers = room_constants.DefaultMaxMembers
	}
	if s.MaxMembers < room_constants.MinMembers || s.MaxMembers > room_constants.MaxMembersLimit {
		return apperr.Validation(apperr.CodeInvalidPayload, "max members out of range").
			WithDetail("min", room_constants.MinMembers).
			WithDetail("max", room_constants.MaxMembersLimit)
	}
	if s.Visibility == "" {
		s.Visibility = models.VisibilityPublic
	}
	if s.Visibility != models.VisibilityPublic && s.Visibility != models.VisibilityPrivate {
		return apperr.Validation(apperr.CodeInvalidPayload, "unknown visibility").
			WithDetail("visibility", s.Visibility)
	}
	if s.Passcode != "" && s.Visibility != models.VisibilityPrivate {
		return apperr.Validation(apperr.CodeInvalidPayload, "only private rooms can have a passcode")
	}
	return nil
}

// CreateRoom opens a new room with the caller as host. A user already in
// another room leaves it once the new room exists.
func (r *Registry) CreateRoom(hostID, connID string, settings models.RoomSettings) (models.RoomSummary, error) {
	if hostID == "" {
		return models.RoomSummary{}, apperr.Validation(apperr.CodeNotIdentified, "identify before creating a room")
	}
	if err := validateSettings(&settings); err != nil {
		return models.RoomSummary{}, err
	}
	var hash []byte
	if settings.Passcode != "" {
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(settings.Passcode), bcrypt.DefaultCost); err != nil {
			return models.RoomSummary{}, apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidPasscode, "passcode cannot be used", err)
		}
	}

	now := r.now()
	room := &models.Room{
		Name:         settings.Name,
		HostID:       hostID,
		Status:       models.StatusWaitingForPlayers,
		Visibility:   settings.Visibility,
		MaxMembers:   settings.MaxMembers,
		StreamerMode: settings.StreamerMode,
		PasscodeHash: hash,
		CreatedAt:    now,
		LastActivity: now,
		Members: []*models.Member{{
			UserID:       hostID,
			DisplayName:  settings.DisplayName,
			Role:         models.RoleHost,
			ConnectionID: connID,
			Location:     models.LocationLobby,
			LastPing:     now,
			JoinedAt:     now,
		}},
	}

	previous, hadRoom := r.RoomOf(hostID)
	if err := r.reserve(room); err != nil {
		return models.RoomSummary{}, err
	}

	var summary models.RoomSummary
	err := r.do(room.Code, func(a *roomActor) error {
		r.record(room.Code, room_constants.LogRoomCreated, hostID, map[string]any{
			"visibility":    room.Visibility,
			"max_members":   room.MaxMembers,
			"streamer_mode": room.StreamerMode,
		})
		r.publish(a)
		summary = a.room.Summary()
		return nil
	})
	if err != nil {
		return models.RoomSummary{}, err
	}

	r.log.WithFields(logrus.Fields{"room": room.Code, "user": hostID}).Info("[CREATE] room created")
	if hadRoom && previous != room.Code {
		r.leavePrevious(previous, hostID)
	}
	return summary, nil
}

// reserve picks a free room code, retrying on collision, and starts the room
func (r *Registry) reserve(room *models.Room) error {
	for attempt := 1; attempt <= room_constants.MaxCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return apperr.Wrap(apperr.KindConflict, apperr.CodeRoomCreationFailed, "could not generate a room code", err)
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return apperr.Transient(apperr.CodeServiceUnavailable, "shutting down", nil)
		}
		if _, taken := r.rooms[code]; taken {
			r.mu.Unlock()
			r.log.WithField("attempt", attempt).Debug("[CREATE] room code collision")
			continue
		}
		room.Code = code
		r.rooms[code] = r.start(room)
		r.userRoom[room.HostID] = code
		delete(r.deleted, code)
		r.mu.Unlock()
		return nil
	}
	return apperr.RoomCreation(room_constants.MaxCodeAttempts)
}

func (r *Registry) leavePrevious(code, userID string) {
	if err := r.LeaveRoom(code, userID); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		r.log.WithFields(logrus.Fields{"room": code, "user": userID}).WithError(err).Warn("[LEAVE] could not leave previous room")
	}
}

// JoinRoom adds a user to a room. Joining the room the user is already in
// only re-attaches the connection.
func (r *Registry) JoinRoom(code, userID, displayName, passcode, connID string) (models.RoomSummary, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return models.RoomSummary{}, err
	}
	if userID == "" {
		return models.RoomSummary{}, apperr.Validation(apperr.CodeNotIdentified, "identify before joining a room")
	}
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > room_constants.MaxNameRunes {
		return models.RoomSummary{}, apperr.Validation(apperr.CodeInvalidPayload, "player name is too long").
			WithDetail("max_length", room_constants.MaxNameRunes)
	}

	previous, hadRoom := r.RoomOf(userID)
	if hadRoom && previous == code {
		return r.AttachConnection(code, userID, connID)
	}

	var summary models.RoomSummary
	err = r.mutate(code, func(a *roomActor) error {
		room := a.room
		if !room.Status.Joinable() {
			return apperr.RoomNotAvailable(code, room.Status, models.JoinableStatuses)
		}
		if room.Full() {
			return apperr.RoomFull(code, room.MaxMembers)
		}
		if len(room.PasscodeHash) > 0 {
			if bcrypt.CompareHashAndPassword(room.PasscodeHash, []byte(passcode)) != nil {
				return apperr.Forbidden(apperr.CodeInvalidPasscode, "wrong passcode for this room")
			}
		}

		now := r.now()
		room.Members = append(room.Members, &models.Member{
			UserID:       userID,
			DisplayName:  displayName,
			Role:         models.RolePlayer,
			ConnectionID: connID,
			Location:     models.LocationLobby,
			LastPing:     now,
			JoinedAt:     now,
		})
		room.Touch(now)

		r.mu.Lock()
		r.userRoom[userID] = code
		r.mu.Unlock()

		summary = room.Summary()
		r.out.ToRoom(code, room_constants.EventPlayerJoined, map[string]any{
			"room_code":    code,
			"user_id":      userID,
			"display_name": displayName,
			"room":         summary,
		})
		r.record(code, room_constants.LogPlayerJoined, userID, nil)
		return nil
	})
	if err != nil {
		return models.RoomSummary{}, err
	}

	r.log.WithFields(logrus.Fields{"room": code, "user": userID}).Info("[JOIN] player joined")
	if hadRoom {
		r.leavePrevious(previous, userID)
	}
	return summary, nil
}

// LeaveRoom removes a member. A departing host hands over to the
// longest-tenured connected member; an emptied room is abandoned and queued
// for deletion.
func (r *Registry) LeaveRoom(code, userID string) error {
	return r.mutate(code, func(a *roomActor) error {
		if a.room.Member(userID) == nil {
			return apperr.NotAMember(code, userID)
		}
		r.dropMember(a, userID, room_constants.EventPlayerLeft, room_constants.LogPlayerLeft, "left")
		return nil
	})
}

// dropMember removes a member from the room and keeps the host invariant
func (r *Registry) dropMember(a *roomActor, userID, event, kind, reason string) {
	room := a.room
	member := room.RemoveMember(userID)
	if member == nil {
		return
	}
	if t, ok := a.graceTimers[userID]; ok {
		t.Stop()
		delete(a.graceTimers, userID)
	}
	a.graceSeq[userID]++
	room.Touch(r.now())

	r.mu.Lock()
	if r.userRoom[userID] == room.Code {
		delete(r.userRoom, userID)
	}
	r.mu.Unlock()

	if member.ConnectionID != "" {
		r.out.ToConnection(member.ConnectionID, room_constants.EventRoomLeft, map[string]any{
			"room_code": room.Code,
			"reason":    reason,
		})
		r.out.Leave(member.ConnectionID, room.Code)
	}

	if room.HostID == userID {
		r.transferHost(a, userID, r.nextHost(room), "host "+reason)
	}

	r.out.ToRoom(room.Code, event, map[string]any{
		"room_code": room.Code,
		"user_id":   userID,
		"reason":    reason,
		"room":      room.Summary(),
	})
	r.record(room.Code, kind, userID, map[string]any{"reason": reason})
	r.log.WithFields(logrus.Fields{"room": room.Code, "user": userID, "reason": reason}).Info("[LEAVE] member removed")

	if len(room.Members) == 0 {
		r.mu.Lock()
		r.pendingDelete[room.Code] = struct{}{}
		r.mu.Unlock()
	}
}

func (r *Registry) connected(m *models.Member) bool {
	if !m.Connected() || m.Location == models.LocationDisconnected {
		return false
	}
	return r.conns == nil || r.conns.Alive(m.ConnectionID)
}

// nextHost picks the longest-tenured connected member, falling back to the
// longest-tenured member of any kind so the room never lacks a host
func (r *Registry) nextHost(room *models.Room) *models.Member {
	var fallback *models.Member
	for _, m := range room.Members {
		if m.UserID == room.HostID {
			continue
		}
		if r.connected(m) {
			return m
		}
		if fallback == nil {
			fallback = m
		}
	}
	return fallback
}

func (r *Registry) transferHost(a *roomActor, fromID string, to *models.Member, reason string) {
	room := a.room
	if to == nil {
		room.HostID = ""
		return
	}
	if old := room.Member(fromID); old != nil {
		old.Role = models.RolePlayer
	}
	to.Role = models.RoleHost
	room.HostID = to.UserID

	r.out.ToRoom(room.Code, room_constants.EventHostTransferred, map[string]any{
		"room_code": room.Code,
		"from":      fromID,
		"to":        to.UserID,
		"reason":    reason,
		"room":      room.Summary(),
	})
	r.record(room.Code, room_constants.LogHostTransferred, to.UserID, map[string]any{"from": fromID, "reason": reason})
	r.log.WithFields(logrus.Fields{"room": room.Code, "from": fromID, "to": to.UserID}).Info("[HOST] host transferred")
}

func requireHost(a *roomActor, userID string) error {
	if a.room.HostID != userID {
		return apperr.NotHost(a.room.Code, userID)
	}
	return nil
}

// KickPlayer removes a member on behalf of the host
func (r *Registry) KickPlayer(code, actorID, targetID string) error {
	return r.mutate(code, func(a *roomActor) error {
		if err := requireHost(a, actorID); err != nil {
			return err
		}
		if targetID == actorID {
			return apperr.Validation(apperr.CodeInvalidPayload, "the host cannot kick themselves")
		}
		if a.room.Member(targetID) == nil {
			return apperr.NotAMember(code, targetID)
		}
		r.dropMember(a, targetID, room_constants.EventPlayerKicked, room_constants.LogPlayerKicked, "kicked")
		return nil
	})
}

// TransferHost hands the host role to another member
func (r *Registry) TransferHost(code, fromID, toID string) error {
	return r.mutate(code, func(a *roomActor) error {
		if err := requireHost(a, fromID); err != nil {
			return err
		}
		to := a.room.Member(toID)
		if to == nil {
			return apperr.NotAMember(code, toID)
		}
		if toID == fromID {
			return nil
		}
		r.transferHost(a, fromID, to, "transferred by host")
		a.room.Touch(r.now())
		return nil
	})
}

// SelectGame sets the room's game and resets everyone's ready flag
func (r *Registry) SelectGame(code, actorID, gameID string) error {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return apperr.Validation(apperr.CodeInvalidPayload, "game id is required")
	}
	return r.mutate(code, func(a *roomActor) error {
		room := a.room
		if err := requireHost(a, actorID); err != nil {
			return err
		}
		if room.Status != models.StatusSelectingGame {
			if err := r.admit(a, models.StatusSelectingGame); err != nil {
				return err
			}
		}
		room.GameID = gameID
		for _, m := range room.Members {
			m.Ready = false
		}
		room.Touch(r.now())
		a.state.Request(models.StatusSelectingGame)

		r.out.ToRoom(code, room_constants.EventGameSelected, map[string]any{
			"room_code": code,
			"game_id":   gameID,
			"room":      room.Summary(),
		})
		return nil
	})
}

// StartGame asks the room to move to starting. The room reaches in_game once
// the host and at least one player report being in the game.
func (r *Registry) StartGame(code, actorID string) error {
	return r.mutate(code, func(a *roomActor) error {
		room := a.room
		if err := requireHost(a, actorID); err != nil {
			return err
		}
		if room.GameID == "" {
			return apperr.Conflict(apperr.CodeInvalidStatusTransition, "select a game first").
				WithDetail("current_status", room.Status)
		}
		if err := r.admit(a, models.StatusStarting); err != nil {
			return err
		}
		room.Touch(r.now())
		a.state.Request(models.StatusStarting)

		r.out.ToRoom(code, room_constants.EventGameStarted, map[string]any{
			"room_code": code,
			"game_id":   room.GameID,
		})
		r.record(code, room_constants.LogGameStarted, actorID, map[string]any{"game_id": room.GameID})
		return nil
	})
}

// ChangeStatus records an explicit status request from the host. A request
// the member locations contradict is refused rather than applied and undone.
func (r *Registry) ChangeStatus(code, actorID string, status models.RoomStatus) error {
	if !status.Valid() || status == models.StatusAbandoned {
		return apperr.Validation(apperr.CodeInvalidPayload, "unknown or reserved status").
			WithDetail("status", status)
	}
	return r.mutate(code, func(a *roomActor) error {
		room := a.room
		if err := requireHost(a, actorID); err != nil {
			return err
		}
		if room.Status == status {
			return nil
		}
		if err := r.admit(a, status); err != nil {
			return err
		}
		room.Touch(r.now())
		a.state.Request(status)
		return nil
	})
}

// admit checks a host request against the transition table and against where
// the members are. Both checks run before anything is broadcast.
func (r *Registry) admit(a *roomActor, to models.RoomStatus) error {
	room := a.room
	if !models.CanTransition(room.Status, to) {
		return invalidTransition(room, to)
	}
	if d, ok := r.rec.Admit(room, &a.state, to, r.now()); !ok {
		return invalidTransition(room, to).
			WithDetail("signals", reconcile.Observe(room)).
			WithDetail("reason", d.Reason)
	}
	return nil
}

func invalidTransition(room *models.Room, to models.RoomStatus) *apperr.Error {
	return apperr.Conflict(apperr.CodeInvalidStatusTransition, "status change not allowed").
		WithDetail("current_status", room.Status).
		WithDetail("requested_status", to)
}

// ToggleReady flips a member's ready flag and returns the new value
func (r *Registry) ToggleReady(code, userID string) (bool, error) {
	var ready bool
	err := r.mutate(code, func(a *roomActor) error {
		m := a.room.Member(userID)
		if m == nil {
			return apperr.NotAMember(code, userID)
		}
		m.Ready = !m.Ready
		ready = m.Ready
		a.room.Touch(r.now())
		r.out.ToRoom(code, room_constants.EventPlayerStatusUpdated, map[string]any{
			"room_code": code,
			"user_id":   userID,
			"ready":     m.Ready,
			"location":  m.Location,
			"room":      a.room.Summary(),
		})
		return nil
	})
	return ready, err
}

// UpdateLocation records a member's location signal. Reporting the current
// location again changes nothing and broadcasts nothing.
func (r *Registry) UpdateLocation(code, userID string, loc models.Location) error {
	if loc != models.LocationLobby && loc != models.LocationGame {
		return apperr.Validation(apperr.CodeInvalidPayload, "location must be lobby or game").
			WithDetail("location", loc)
	}
	return r.do(code, func(a *roomActor) error {
		m := a.room.Member(userID)
		if m == nil {
			return apperr.NotAMember(code, userID)
		}
		now := r.now()
		m.LastPing = now
		if m.Location == loc {
			return nil
		}
		m.Location = loc
		a.room.Touch(now)
		r.out.ToRoom(code, room_constants.EventPlayerStatusUpdated, map[string]any{
			"room_code": code,
			"user_id":   userID,
			"ready":     m.Ready,
			"location":  loc,
			"room":      a.room.Summary(),
		})
		r.settle(a)
		r.publish(a)
		return nil
	})
}

// Ping refreshes a member's last-ping timestamp without any broadcast
func (r *Registry) Ping(code, userID string) error {
	return r.do(code, func(a *roomActor) error {
		m := a.room.Member(userID)
		if m == nil {
			return apperr.NotAMember(code, userID)
		}
		m.LastPing = r.now()
		return nil
	})
}

// Chat relays a message to everyone in the room
func (r *Registry) Chat(code, userID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return apperr.Validation(apperr.CodeInvalidPayload, "message is empty")
	}
	if utf8.RuneCountInString(message) > room_constants.MaxChatRunes {
		return apperr.Validation(apperr.CodeInvalidPayload, "message is too long").
			WithDetail("max_length", room_constants.MaxChatRunes)
	}
	return r.do(code, func(a *roomActor) error {
		m := a.room.Member(userID)
		if m == nil {
			return apperr.NotAMember(code, userID)
		}
		now := r.now()
		a.room.Touch(now)
		r.out.ToRoom(code, room_constants.EventChatMessage, map[string]any{
			"room_code":    code,
			"user_id":      userID,
			"display_name": m.DisplayName,
			"message":      message,
			"at":           now,
		})
		return nil
	})
}

// DeleteRoom closes a room on behalf of its host
func (r *Registry) DeleteRoom(code, actorID string) error {
	return r.do(code, func(a *roomActor) error {
		if err := requireHost(a, actorID); err != nil {
			return err
		}
		r.remove(a, "closed by host")
		return nil
	})
}

// Summary returns the authoritative snapshot of a room
func (r *Registry) Summary(code string) (models.RoomSummary, error) {
	var summary models.RoomSummary
	err := r.do(code, func(a *roomActor) error {
		summary = a.room.Summary()
		return nil
	})
	return summary, err
}

// PublicRooms lists joinable public rooms from the published snapshots.
// Streamer-mode rooms never show up here.
func (r *Registry) PublicRooms() []models.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RoomSummary, 0, len(r.summaries))
	for _, s := range r.summaries {
		if s.Visibility != models.VisibilityPublic || s.StreamerMode {
			continue
		}
		if !s.Status.Joinable() || s.MemberCount >= s.MaxMembers {
			continue
		}
		out = append(out, s)
	}
	sortByCreation(out)
	return out
}
