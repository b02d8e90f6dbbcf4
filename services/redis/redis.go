// Package redis wraps the go-redis client with the few operations the game
// server needs: the leaderboard sorted set and player presence keys.
package redis

import (
	"context"
	"fmt"
	"time"

	redis_models "Renju/models/redis"
	"Renju/services/ranking"

	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const (
	leaderboardKey = "leaderboard"
	presenceTTL    = 24 * time.Hour

	// The zset only orders by one float score, so credits and wins are
	// packed into a single value: credits take the high part, wins break
	// ties within equal credits.
	winsPacking = 100000
)

// Client handles Redis operations.
type Client struct {
	client *redis.Client
	ctx    context.Context
}

// New creates a Redis client and verifies the connection.
func New(addr string, db int) (*Client, error) {
	var client *redis.Client
	if opt, err := redis.ParseURL(addr); err == nil {
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr, DB: db})
	}

	rc := &Client{client: client, ctx: context.Background()}
	if err := client.Ping(rc.ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rc, nil
}

// Close closes the underlying connection.
func Close(rc *Client) {
	if rc != nil && rc.client != nil {
		_ = rc.client.Close()
	}
}

func presenceKey(username string) string {
	return fmt.Sprintf("player:%s:presence", username)
}

// SetPresence stores a player's presence state.
// Key format: "player:{username}:presence", TTL 24 hours.
func (rc *Client) SetPresence(p *redis_models.PlayerPresence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling presence: %w", err)
	}
	return rc.client.Set(rc.ctx, presenceKey(p.Username), data, presenceTTL).Err()
}

// DeletePresence removes a player's presence key.
func (rc *Client) DeletePresence(username string) error {
	return rc.client.Del(rc.ctx, presenceKey(username)).Err()
}

// Update writes a player's packed (credits, wins) score into the
// leaderboard sorted set.
func (rc *Client) Update(username string, credits, wins int) error {
	if wins >= winsPacking {
		wins = winsPacking - 1
	}
	score := float64(credits*winsPacking + wins)
	return rc.client.ZAdd(rc.ctx, leaderboardKey, redis.Z{
		Score:  score,
		Member: username,
	}).Err()
}

// Remove drops a player from the leaderboard.
func (rc *Client) Remove(username string) error {
	return rc.client.ZRem(rc.ctx, leaderboardKey, username).Err()
}

// Top returns the n best-ranked players, credits descending with wins as
// the tiebreaker.
func (rc *Client) Top(n int) ([]ranking.Entry, error) {
	zs, err := rc.client.ZRevRangeWithScores(rc.ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}

	entries := make([]ranking.Entry, 0, len(zs))
	for i, z := range zs {
		username, _ := z.Member.(string)
		packed := int(z.Score)
		entries = append(entries, ranking.Entry{
			Rank:     i + 1,
			Username: username,
			Credits:  packed / winsPacking,
			Wins:     packed % winsPacking,
		})
	}
	return entries, nil
}
