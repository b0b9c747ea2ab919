// Package sweeper runs the periodic lifecycle pass: it evicts silent
// connections, prunes members that never came back, deletes idle rooms and
// flushes the registry's deltas to the durable store and the Redis mirror.
package sweeper

import (
	room_constants "Gamebuddies/constants/room"
	"Gamebuddies/models"
	"Gamebuddies/services/rooms"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Registry is the part of the room registry the sweeper drives
type Registry interface {
	PruneDisconnected(now time.Time) int
	ExpireIdle(now time.Time) []string
	DeletePending() []string
	DrainChanges() rooms.Changes
	Requeue(c rooms.Changes)
	RoomOf(userID string) (string, bool)
}

// Presence evicts connections whose heartbeat went quiet
type Presence interface {
	Sweep(now time.Time) []string
}

// Store is the durable persistence API
type Store interface {
	SaveRooms(ctx context.Context, rooms []models.RoomSummary) error
	DeleteRooms(ctx context.Context, codes []string) error
	LogEvents(ctx context.Context, events []models.RoomEvent) error
	CleanupStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Mirror is the Redis copy collaborators read presence from
type Mirror interface {
	MirrorRooms(ctx context.Context, rooms []models.RoomSummary, ttl time.Duration) error
	DeleteRooms(ctx context.Context, codes []string) error
	ClearPresence(ctx context.Context, userID string) error
}

type Config struct {
	Interval     time.Duration
	StaleRowAge  time.Duration
	CleanupEvery time.Duration
	MirrorTTL    time.Duration
}

// Report summarizes one pass
type Report struct {
	Evicted  []string
	Pruned   int
	Expired  []string
	Deleted  []string
	Flushed  int
	Requeued bool
	Cleaned  int64
}

type Sweeper struct {
	cfg      Config
	registry Registry
	presence Presence
	store    Store
	mirror   Mirror
	log      *logrus.Entry

	passMu      sync.Mutex
	lastCleanup time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a sweeper. The store and the mirror are optional.
func New(cfg Config, registry Registry, presence Presence, store Store, mirror Mirror) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = room_constants.DefaultSweepInterval
	}
	if cfg.StaleRowAge <= 0 {
		cfg.StaleRowAge = room_constants.DefaultStaleRowAge
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 24 * time.Hour
	}
	if cfg.MirrorTTL <= 0 {
		cfg.MirrorTTL = 10 * cfg.Interval
	}
	return &Sweeper{
		cfg:      cfg,
		registry: registry,
		presence: presence,
		store:    store,
		mirror:   mirror,
		log:      logrus.WithField("component", "sweeper"),
	}
}

// Start runs passes on the configured interval until Stop is called
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Pass(ctx, now)
			}
		}
	}(s.done)
	s.log.WithField("interval", s.cfg.Interval).Info("sweeper started")
}

// Stop suspends sweeping and runs a final flush so pending writes are not lost
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.passMu.Lock()
	defer s.passMu.Unlock()
	if _, err := s.flush(ctx); err != nil {
		return err
	}
	s.log.Info("sweeper stopped")
	return nil
}

// Pass runs one sweep. Failures are logged and retried on the next pass.
func (s *Sweeper) Pass(ctx context.Context, now time.Time) Report {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	var rep Report
	if s.presence != nil {
		rep.Evicted = s.presence.Sweep(now)
	}
	rep.Pruned = s.registry.PruneDisconnected(now)
	rep.Expired = s.registry.ExpireIdle(now)
	rep.Deleted = s.registry.DeletePending()

	flushed, err := s.flush(ctx)
	rep.Flushed = flushed
	rep.Requeued = err != nil

	if s.store != nil && now.Sub(s.lastCleanup) >= s.cfg.CleanupEvery {
		cleaned, err := s.store.CleanupStale(ctx, now.Add(-s.cfg.StaleRowAge))
		if err != nil {
			s.log.WithError(err).Warn("[SWEEP] stale row cleanup failed")
		} else {
			s.lastCleanup = now
			rep.Cleaned = cleaned
		}
	}

	if len(rep.Evicted) > 0 || rep.Pruned > 0 || len(rep.Expired) > 0 || len(rep.Deleted) > 0 {
		s.log.WithFields(logrus.Fields{
			"evicted": len(rep.Evicted),
			"pruned":  rep.Pruned,
			"expired": len(rep.Expired),
			"deleted": len(rep.Deleted),
			"flushed": rep.Flushed,
		}).Info("[SWEEP] pass complete")
	}
	return rep
}

// flush writes the drained deltas. Whatever the store could not take is
// requeued; the mirror is best-effort and never causes a requeue.
func (s *Sweeper) flush(ctx context.Context) (int, error) {
	c := s.registry.DrainChanges()
	if c.Empty() {
		return 0, nil
	}

	var failed rooms.Changes
	var errs []error
	if s.store != nil {
		if err := s.store.SaveRooms(ctx, c.Rooms); err != nil {
			failed.Rooms, errs = c.Rooms, append(errs, err)
		}
		if err := s.store.DeleteRooms(ctx, c.Deleted); err != nil {
			failed.Deleted, errs = c.Deleted, append(errs, err)
		}
		if err := s.store.LogEvents(ctx, c.Events); err != nil {
			failed.Events, errs = c.Events, append(errs, err)
		}
	}
	if !failed.Empty() {
		s.registry.Requeue(failed)
	}

	if s.mirror != nil {
		s.syncMirror(ctx, c)
	}

	err := errors.Join(errs...)
	if err != nil {
		s.log.WithError(err).Warn("[FLUSH] durability write failed, will retry next pass")
	}
	return len(c.Rooms) + len(c.Deleted) + len(c.Events), err
}

func (s *Sweeper) syncMirror(ctx context.Context, c rooms.Changes) {
	if err := s.mirror.MirrorRooms(ctx, c.Rooms, s.cfg.MirrorTTL); err != nil {
		s.log.WithError(err).Warn("[FLUSH] redis mirror write failed")
	}
	if err := s.mirror.DeleteRooms(ctx, c.Deleted); err != nil {
		s.log.WithError(err).Warn("[FLUSH] redis mirror delete failed")
	}
	for _, ev := range c.Events {
		if ev.Kind != room_constants.LogPlayerLeft && ev.Kind != room_constants.LogPlayerKicked {
			continue
		}
		if _, stillInRoom := s.registry.RoomOf(ev.UserID); stillInRoom {
			continue
		}
		if err := s.mirror.ClearPresence(ctx, ev.UserID); err != nil {
			s.log.WithField("user", ev.UserID).WithError(err).Warn("[FLUSH] redis presence clear failed")
		}
	}
}
