// Package notify hands room events to collaborators (achievements, friend
// presence) without ever blocking the room that produced them.
package notify

import (
	"Gamebuddies/models"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Backend delivers one event to the outside world
type Backend interface {
	Name() string
	Send(ctx context.Context, ev models.RoomEvent) error
	Close() error
}

const (
	defaultQueueSize   = 1024
	defaultSendTimeout = 3 * time.Second
)

// Dispatcher queues events and delivers them from a single goroutine so that
// a slow backend cannot stall room processing
type Dispatcher struct {
	backend Backend
	queue   chan models.RoomEvent
	timeout time.Duration
	log     *logrus.Entry

	dropped   atomic.Int64
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(backend Backend, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	d := &Dispatcher{
		backend: backend,
		queue:   make(chan models.RoomEvent, queueSize),
		timeout: defaultSendTimeout,
		log:     logrus.WithFields(logrus.Fields{"component": "notify", "backend": backend.Name()}),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues an event. A full queue drops the event.
func (d *Dispatcher) Notify(ev models.RoomEvent) {
	select {
	case <-d.closing:
		return
	default:
	}
	select {
	case d.queue <- ev:
	default:
		n := d.dropped.Add(1)
		d.log.WithFields(logrus.Fields{"room": ev.RoomCode, "kind": ev.Kind, "dropped_total": n}).
			Warn("notification queue full, dropping event")
	}
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.send(ev)
		case <-d.closing:
			// deliver what is already queued, then stop
			for {
				select {
				case ev := <-d.queue:
					d.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(ev models.RoomEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.backend.Send(ctx, ev); err != nil {
		d.log.WithFields(logrus.Fields{"room": ev.RoomCode, "kind": ev.Kind}).WithError(err).
			Warn("notification not delivered")
	}
}

// Close flushes the queue and closes the backend. It gives up when ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.closing) })
	select {
	case <-d.done:
	case <-ctx.Done():
		d.log.Warn("notification queue not drained before shutdown deadline")
	}
	return d.backend.Close()
}
