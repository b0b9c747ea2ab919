// Package reconcile computes one canonical room status from two signals that
// can disagree: where the host is, and where the rest of the members are.
//
// Evaluate never mutates the room. The caller applies the decision with Apply
// from inside the room's serialized task queue and schedules a re-check when
// the decision asks for one.
package reconcile

import (
	"time"

	"Gamebuddies/models"
)

type Config struct {
	// SettleWindow is how long a contradiction between the host signal and
	// the player majority has to hold before the majority wins.
	SettleWindow time.Duration
	// StartWindow bounds how long a room may sit in starting waiting for the
	// rest of the members to confirm they are in the game.
	StartWindow time.Duration
	// LobbyMajority is the fraction of active members that must agree for a
	// majority; the count has to be strictly greater than it.
	LobbyMajority float64
}

type Outcome int

const (
	NoChange Outcome = iota
	// Transition is an expected status change
	Transition
	// ConflictResolved is a correction made after the signals disagreed for a whole settle window
	ConflictResolved
)

func (o Outcome) String() string {
	switch o {
	case Transition:
		return "transition"
	case ConflictResolved:
		return "conflict_resolved"
	default:
		return "no_change"
	}
}

type Decision struct {
	Outcome      Outcome
	From         models.RoomStatus
	To           models.RoomStatus
	Reason       string
	RecheckIn    time.Duration
	OverruleHost bool
}

func (d Decision) Changed() bool {
	return d.Outcome != NoChange
}

// State is the per-room memory the reconciler needs between evaluations.
// It belongs to the room and is only touched from the room's task queue.
type State struct {
	Requested     models.RoomStatus
	StartingSince time.Time
	ConflictSince time.Time
	HostOverruled bool

	lastHostID       string
	lastHostLocation models.Location
}

// Request records an explicit status change asked for by the host. It is
// honored on the next evaluation.
func (s *State) Request(status models.RoomStatus) {
	s.Requested = status
}

type Reconciler struct {
	cfg Config
}

func New(cfg Config) *Reconciler {
	if cfg.LobbyMajority <= 0 || cfg.LobbyMajority >= 1 {
		cfg.LobbyMajority = 0.5
	}
	return &Reconciler{cfg: cfg}
}

func (r *Reconciler) Config() Config {
	return r.cfg
}

type signals struct {
	hostInGame  bool
	active      int
	others      int
	othersGame  int
	othersLobby int
	lobbyTotal  int
	inGameTotal int
}

func (r *Reconciler) read(room *models.Room, st *State) signals {
	host := room.Host()
	if host != nil && (st.lastHostID != host.UserID || st.lastHostLocation != host.Location) {
		// a fresh host signal always gets a fresh hearing
		st.HostOverruled = false
		st.lastHostID = host.UserID
		st.lastHostLocation = host.Location
	}

	var s signals
	s.hostInGame = host != nil && host.Location == models.LocationGame && !st.HostOverruled
	for _, m := range room.Members {
		if m.Location == models.LocationDisconnected {
			continue
		}
		s.active++
		switch m.Location {
		case models.LocationGame:
			s.inGameTotal++
		case models.LocationLobby:
			s.lobbyTotal++
		}
		if m.UserID == room.HostID {
			continue
		}
		s.others++
		switch m.Location {
		case models.LocationGame:
			s.othersGame++
		case models.LocationLobby:
			s.othersLobby++
		}
	}
	return s
}

func (r *Reconciler) majority(count, of int) bool {
	return of > 0 && float64(count) > r.cfg.LobbyMajority*float64(of)
}

func lobbyStatus(room *models.Room) models.RoomStatus {
	if room.GameID != "" {
		return models.StatusSelectingGame
	}
	return models.StatusWaitingForPlayers
}

func remaining(since time.Time, window time.Duration, now time.Time) time.Duration {
	left := window - now.Sub(since)
	if left < 0 {
		return 0
	}
	return left
}

// Evaluate returns what the room status should be right now. Evaluating a
// stable room returns NoChange.
func (r *Reconciler) Evaluate(room *models.Room, st *State, now time.Time) Decision {
	from := room.Status
	stay := Decision{Outcome: NoChange, From: from, To: from}
	move := func(outcome Outcome, to models.RoomStatus, reason string) Decision {
		return Decision{Outcome: outcome, From: from, To: to, Reason: reason}
	}

	s := r.read(room, st)

	if s.active == 0 {
		if from == models.StatusAbandoned {
			return stay
		}
		return move(Transition, models.StatusAbandoned, "all members disconnected")
	}
	if from == models.StatusAbandoned {
		return move(Transition, models.StatusWaitingForPlayers, "a member came back")
	}

	if req := st.Requested; req != "" {
		st.Requested = ""
		if req != from && models.CanTransition(from, req) {
			d := move(Transition, req, "requested by host")
			if req == models.StatusStarting {
				d.RecheckIn = r.cfg.StartWindow
			}
			return d
		}
	}

	switch from {
	case models.StatusPaused:
		return stay

	case models.StatusInGame:
		if !r.majority(s.lobbyTotal, s.active) {
			st.ConflictSince = time.Time{}
			return stay
		}
		if !s.hostInGame {
			return move(Transition, models.StatusFinished, "players returned to the lobby")
		}
		// the host still reports the game while most players are back
		if st.ConflictSince.IsZero() {
			st.ConflictSince = now
		}
		if left := remaining(st.ConflictSince, r.cfg.SettleWindow, now); left > 0 {
			stay.RecheckIn = left
			return stay
		}
		d := move(ConflictResolved, models.StatusFinished, "player majority returned to the lobby while the host still reported the game")
		d.OverruleHost = true
		return d

	default:
		if s.hostInGame {
			if s.othersGame > 0 || s.others == 0 {
				return move(Transition, models.StatusInGame, "host and players are in the game")
			}
			if from != models.StatusStarting {
				d := move(Transition, models.StatusStarting, "host entered the game")
				d.RecheckIn = r.cfg.StartWindow
				return d
			}
			if st.StartingSince.IsZero() {
				st.StartingSince = now
			}
			if left := remaining(st.StartingSince, r.cfg.StartWindow, now); left > 0 {
				stay.RecheckIn = left
				return stay
			}
			d := move(ConflictResolved, lobbyStatus(room), "no player followed the host into the game")
			d.OverruleHost = true
			return d
		}

		if from != models.StatusStarting {
			st.ConflictSince = time.Time{}
			return stay
		}
		if s.othersGame > 0 && r.majority(s.inGameTotal, s.active) {
			// players made it into the game but the host signal never did
			if st.ConflictSince.IsZero() {
				st.ConflictSince = now
			}
			if left := remaining(st.ConflictSince, r.cfg.SettleWindow, now); left > 0 {
				stay.RecheckIn = left
				return stay
			}
			return move(ConflictResolved, models.StatusInGame, "player majority is in the game while the host signal is not")
		}
		st.ConflictSince = time.Time{}
		if st.StartingSince.IsZero() {
			st.StartingSince = now
		}
		if left := remaining(st.StartingSince, r.cfg.StartWindow, now); left > 0 {
			stay.RecheckIn = left
			return stay
		}
		return move(Transition, lobbyStatus(room), "game start timed out")
	}
}

// Signals is where the active members of a room currently are
type Signals struct {
	HostLocation models.Location `json:"host_location"`
	Active       int             `json:"active"`
	InGame       int             `json:"in_game"`
	InLobby      int             `json:"in_lobby"`
}

func Observe(room *models.Room) Signals {
	var s Signals
	if host := room.Host(); host != nil {
		s.HostLocation = host.Location
	}
	for _, m := range room.Members {
		switch m.Location {
		case models.LocationGame:
			s.Active++
			s.InGame++
		case models.LocationLobby:
			s.Active++
			s.InLobby++
		}
	}
	return s
}

// Admit reports whether the room could move to status to without the current
// signals moving it somewhere else on the very next evaluation. The returned
// decision is that next evaluation. Neither room nor st is modified.
func (r *Reconciler) Admit(room *models.Room, st *State, to models.RoomStatus, now time.Time) (Decision, bool) {
	trial := *room
	ts := *st
	ts.Requested = ""
	r.Apply(&trial, &ts, Decision{Outcome: Transition, From: room.Status, To: to}, now)
	d := r.Evaluate(&trial, &ts, now)
	return d, !d.Changed()
}

// Apply writes a decision to the room and updates the reconciler state
func (r *Reconciler) Apply(room *models.Room, st *State, d Decision, now time.Time) {
	if !d.Changed() {
		return
	}
	room.Status = d.To
	room.Touch(now)
	st.ConflictSince = time.Time{}
	if d.To == models.StatusStarting {
		st.StartingSince = now
	} else {
		st.StartingSince = time.Time{}
	}
	if d.OverruleHost {
		st.HostOverruled = true
	}
}
