package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bingopos/backend/internal/domain"
)

// RedisTracker shares presence across server instances. Last-seen times
// live in a sorted set and states in a hash, both under prefix.
type RedisTracker struct {
	client   *redis.Client
	timeout  time.Duration
	seenKey  string
	stateKey string
	now      func() time.Time
}

func NewRedisTracker(client *redis.Client, prefix string, timeout time.Duration) *RedisTracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if prefix == "" {
		prefix = "bingopos:presence"
	}
	return &RedisTracker{
		client:   client,
		timeout:  timeout,
		seenKey:  prefix + ":seen",
		stateKey: prefix + ":state",
		now:      time.Now,
	}
}

func (t *RedisTracker) Touch(ctx context.Context, sessionID string, state string) error {
	if !ValidState(state) {
		return ErrUnknownState
	}
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, t.seenKey, redis.Z{Score: float64(t.now().UnixMilli()), Member: sessionID})
		pipe.HSet(ctx, t.stateKey, sessionID, state)
		return nil
	})
	return err
}

func (t *RedisTracker) Remove(ctx context.Context, sessionID string) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, t.seenKey, sessionID)
		pipe.HDel(ctx, t.stateKey, sessionID)
		return nil
	})
	return err
}

func (t *RedisTracker) Snapshot(ctx context.Context) (domain.PresenceSnapshot, error) {
	cutoff := strconv.FormatInt(t.now().Add(-t.timeout).UnixMilli(), 10)

	expired, err := t.client.ZRangeByScore(ctx, t.seenKey, &redis.ZRangeBy{Min: "-inf", Max: "(" + cutoff}).Result()
	if err != nil {
		return domain.PresenceSnapshot{}, err
	}
	if len(expired) > 0 {
		_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, t.seenKey, "-inf", "("+cutoff)
			pipe.HDel(ctx, t.stateKey, expired...)
			return nil
		})
		if err != nil {
			return domain.PresenceSnapshot{}, err
		}
	}

	states, err := t.client.HGetAll(ctx, t.stateKey).Result()
	if err != nil {
		return domain.PresenceSnapshot{}, err
	}
	var snap domain.PresenceSnapshot
	for _, state := range states {
		count(&snap, state)
	}
	return snap, nil
}
