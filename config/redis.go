package config

import (
	"Gamebuddies/services/redis"
	"fmt"
)

// Connect_redis opens the Redis mirror
func Connect_redis(url string) (*redis.RedisClient, error) {
	redisClient, err := redis.InitRedis(url, 0)
	if err != nil {
		return nil, fmt.Errorf("connecting to Redis at %s: %w", url, err)
	}
	return redisClient, nil
}
