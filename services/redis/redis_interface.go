package redis

import (
	"Gamebuddies/models"
	redis_models "Gamebuddies/models/redis"
	redis_utils "Gamebuddies/services/redis/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisClient mirrors room snapshots and member presence for collaborators
// that cannot talk to the registry directly (friend lists, achievements).
type RedisClient struct {
	client *redis.Client
	log    *logrus.Entry
}

// NewRedisClient accepts either a redis:// URL or a bare host:port address
func NewRedisClient(addr string, db int) (*RedisClient, error) {
	var opt *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		if opt, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("error parsing Redis URL: %w", err)
		}
	} else {
		opt = &redis.Options{Addr: addr, DB: db}
	}
	return &RedisClient{
		client: redis.NewClient(opt),
		log:    logrus.WithField("component", "redis"),
	}, nil
}

func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func presenceOf(s models.RoomSummary, m models.MemberView) redis_models.UserPresence {
	status := redis_models.PresenceInLobby
	switch {
	case !m.Connected || m.Location == models.LocationDisconnected:
		status = redis_models.PresenceAway
	case m.Location == models.LocationGame:
		status = redis_models.PresenceInGame
	}
	p := redis_models.UserPresence{
		UserID:    m.UserID,
		RoomCode:  s.Code,
		GameID:    s.GameID,
		Status:    status,
		Connected: m.Connected,
		Hidden:    s.StreamerMode,
		UpdatedAt: s.LastActivity,
	}
	if p.Hidden {
		p.RoomCode = ""
	}
	return p
}

// MirrorRooms writes every room snapshot and the presence of its members in
// one pipeline.
// Key format: "room:{code}" and "presence:{user_id}"
func (rc *RedisClient) MirrorRooms(ctx context.Context, rooms []models.RoomSummary, ttl time.Duration) error {
	if len(rooms) == 0 {
		return nil
	}
	pipe := rc.client.Pipeline()
	for _, s := range rooms {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("error marshaling room %s: %w", s.Code, err)
		}
		pipe.Set(ctx, redis_utils.FormatRoomKey(s.Code), data, ttl)

		for _, m := range s.Members {
			presence, err := json.Marshal(presenceOf(s, m))
			if err != nil {
				return fmt.Errorf("error marshaling presence of %s: %w", m.UserID, err)
			}
			pipe.Set(ctx, redis_utils.FormatPresenceKey(m.UserID), presence, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error mirroring rooms: %w", err)
	}
	return nil
}

// DeleteRooms drops the snapshots of deleted rooms. Presence keys expire on
// their own.
func (rc *RedisClient) DeleteRooms(ctx context.Context, codes []string) error {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, redis_utils.FormatRoomKey(code))
	}
	return rc.CleanupKeys(ctx, keys)
}

// GetRoom returns the mirrored snapshot of a room, or nil if there is none
func (rc *RedisClient) GetRoom(ctx context.Context, code string) (*models.RoomSummary, error) {
	data, err := rc.client.Get(ctx, redis_utils.FormatRoomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting room data: %w", err)
	}
	var s models.RoomSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error unmarshaling room data: %w", err)
	}
	return &s, nil
}

// GetPresence returns what friends see for a user, or nil if the user is not
// in any room
func (rc *RedisClient) GetPresence(ctx context.Context, userID string) (*redis_models.UserPresence, error) {
	data, err := rc.client.Get(ctx, redis_utils.FormatPresenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting presence data: %w", err)
	}
	var p redis_models.UserPresence
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error unmarshaling presence data: %w", err)
	}
	return &p, nil
}

// ClearPresence removes a user's presence, used when they leave their room
func (rc *RedisClient) ClearPresence(ctx context.Context, userID string) error {
	return rc.CleanupKeys(ctx, []string{redis_utils.FormatPresenceKey(userID)})
}

func (rc *RedisClient) Close() error {
	return CloseRedis(rc)
}
