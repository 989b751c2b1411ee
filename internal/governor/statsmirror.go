package governor

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// StatsMirror publishes a trace's duplicate count to a shared store, so a
// second ingestion process can warm its view of hot duplicates without
// replaying the whole stream through its own Count-Min Sketch.
type StatsMirror interface {
	Publish(ctx context.Context, traceID model.TraceID, count uint64) error
}

// RedisStatsMirror is a Redis-backed StatsMirror: one counter key per trace,
// refreshed with a sliding TTL so long-idle traces age out on their own.
type RedisStatsMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsMirror dials addr and pings it to validate the connection.
func NewRedisStatsMirror(addr string, ttl time.Duration) (*RedisStatsMirror, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStatsMirror{client: c, ttl: ttl}, nil
}

// Publish stores traceID's latest duplicate count under a namespaced key.
func (m *RedisStatsMirror) Publish(ctx context.Context, traceID model.TraceID, count uint64) error {
	key := "governor:dupcount:" + traceID.String()
	return m.client.Set(ctx, key, count, m.ttl).Err()
}

// Close closes the underlying Redis client.
func (m *RedisStatsMirror) Close() error {
	return m.client.Close()
}
