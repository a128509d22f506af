// Package redis implements engine.Locker on Redis SET NX, for deployments
// running more than one claimflow instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "claimflow:lock:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a crashed instance can hold a claim lock.
	TTL time.Duration
}

// Locker acquires per-claim locks in Redis.
type Locker struct {
	client *goredis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Locker, error) {
	if cfg.TTL == 0 {
		cfg.TTL = 10 * time.Minute
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Locker{client: client, ttl: cfg.TTL}, nil
}

// Acquire takes the lock for key if free. The lock value is a random token
// so release cannot drop a lock that has since expired and been re-acquired.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		// Delete only if we still own the lock.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		l.client.Eval(releaseCtx, script, []string{redisKey}, token)
	}
	return release, true, nil
}

// Close releases the Redis connection.
func (l *Locker) Close() error {
	return l.client.Close()
}
