package config

import (
	"Renju/services/redis"
	"fmt"
)

// ConnectRedis opens the Redis connection used for the leaderboard
// materialization and player presence keys.
func ConnectRedis(cfg RedisConfig) (*redis.Client, error) {
	client, err := redis.New(cfg.URL, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}
