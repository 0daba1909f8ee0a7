package leader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLock is a best-effort single-holder lock (SET NX PX). Used so
// that exactly one instance runs periodic maintenance per cycle; losing
// the lock only means skipping a cycle, never corrupting state.
type RedisLock struct {
	client     *redis.Client
	instanceID string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{
		client:     client,
		instanceID: uuid.New().String(),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.instanceID, ttl).Result()
}
