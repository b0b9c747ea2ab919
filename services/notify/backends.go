package notify

import (
	"Gamebuddies/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	// TypeRoomEvent is the asynq task type workers subscribe to
	TypeRoomEvent = "room:event"
	// QueueNotifications is the asynq queue room events go to
	QueueNotifications = "notifications"
	// SubjectPrefix is prepended to the event kind to form the NATS subject
	SubjectPrefix = "gamebuddies.rooms."
)

// LogBackend writes events to the log. It is the default when no broker is configured.
type LogBackend struct {
	log *logrus.Entry
}

func NewLogBackend() *LogBackend {
	return &LogBackend{log: logrus.WithField("component", "notify")}
}

func (b *LogBackend) Name() string { return "log" }

func (b *LogBackend) Send(_ context.Context, ev models.RoomEvent) error {
	b.log.WithFields(logrus.Fields{
		"room":  ev.RoomCode,
		"kind":  ev.Kind,
		"user":  ev.UserID,
		"event": ev.ID,
	}).Info("[EVENT] room event")
	return nil
}

func (b *LogBackend) Close() error { return nil }

// NewRoomEventTask wraps a room event into an asynq task
func NewRoomEventTask(ev models.RoomEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room event: %w", err)
	}
	return asynq.NewTask(TypeRoomEvent, payload,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		// the event id doubles as the task id, so a retried flush cannot enqueue twice
		asynq.TaskID(ev.ID),
	), nil
}

// AsynqBackend enqueues events as background tasks on Redis
type AsynqBackend struct {
	client *asynq.Client
}

func NewAsynqBackend(opt asynq.RedisConnOpt) *AsynqBackend {
	return &AsynqBackend{client: asynq.NewClient(opt)}
}

func (b *AsynqBackend) Name() string { return "asynq" }

func (b *AsynqBackend) Send(ctx context.Context, ev models.RoomEvent) error {
	task, err := NewRoomEventTask(ev)
	if err != nil {
		return err
	}
	if _, err := b.client.EnqueueContext(ctx, task); err != nil && err != asynq.ErrTaskIDConflict {
		return fmt.Errorf("failed to enqueue room event: %w", err)
	}
	return nil
}

func (b *AsynqBackend) Close() error {
	return b.client.Close()
}

// Subject returns the NATS subject an event kind is published on
func Subject(kind string) string {
	return SubjectPrefix + kind
}

// NATSBackend publishes events on core NATS subjects, one per event kind
type NATSBackend struct {
	conn *nats.Conn
}

func NewNATSBackend(url string) (*NATSBackend, error) {
	log := logrus.WithField("component", "notify")
	conn, err := nats.Connect(url,
		nats.Name("gamebuddies"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSBackend{conn: conn}, nil
}

func (b *NATSBackend) Name() string { return "nats" }

func (b *NATSBackend) Send(_ context.Context, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	msg := nats.NewMsg(Subject(ev.Kind))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Header.Set("Room-Code", ev.RoomCode)
	return b.conn.PublishMsg(msg)
}

func (b *NATSBackend) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
