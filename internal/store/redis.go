package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// latencySamples bounds the per-agent response latency window.
	latencySamples = 50

	// activityWindow is how far back an agent's activity counts.
	activityWindow = 30 * 24 * time.Hour
)

// RedisStore handles Redis operations for quality signals and rate
// limiting counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for rate limiting counters.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// latencyKey returns the key for an agent's response latency samples.
func latencyKey(agentID uuid.UUID) string {
	return fmt.Sprintf("signals:%s:latency", agentID)
}

// activityKey returns the key for an agent's active-day set.
func activityKey(agentID uuid.UUID) string {
	return fmt.Sprintf("signals:%s:activity", agentID)
}

// RecordResponseLatency pushes one response latency sample, keeping a
// bounded window of recent samples.
func (s *RedisStore) RecordResponseLatency(ctx context.Context, agentID uuid.UUID, latency time.Duration) error {
	key := latencyKey(agentID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, latency.Milliseconds())
	pipe.LTrim(ctx, key, 0, latencySamples-1)
	pipe.Expire(ctx, key, activityWindow)
	_, err := pipe.Exec(ctx)
	return err
}

// AvgResponseLatency returns the mean of the recorded samples, or nil
// when the agent has none.
func (s *RedisStore) AvgResponseLatency(ctx context.Context, agentID uuid.UUID) (*time.Duration, error) {
	samples, err := s.client.LRange(ctx, latencyKey(agentID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	var totalMs int64
	for _, sample := range samples {
		ms, err := strconv.ParseInt(sample, 10, 64)
		if err != nil {
			continue
		}
		totalMs += ms
	}
	avg := time.Duration(totalMs/int64(len(samples))) * time.Millisecond
	return &avg, nil
}

// MarkActive records that the agent did something today.
func (s *RedisStore) MarkActive(ctx context.Context, agentID uuid.UUID) error {
	now := time.Now().UTC()
	day := now.Format("2006-01-02")
	key := activityKey(agentID)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: day})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-activityWindow).Unix(), 10))
	pipe.Expire(ctx, key, activityWindow)
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveDays returns the number of distinct days the agent was active
// in the trailing window.
func (s *RedisStore) ActiveDays(ctx context.Context, agentID uuid.UUID) (int, error) {
	now := time.Now().UTC()
	cutoff := strconv.FormatInt(now.Add(-activityWindow).Unix(), 10)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, activityKey(agentID), "0", cutoff)
	card := pipe.ZCard(ctx, activityKey(agentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}
