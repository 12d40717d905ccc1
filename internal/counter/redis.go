package counter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gavelworks/gavel/internal/common"
)

// Script errors raised by incrEqScript. The names are part of the atomic
// script contract; classifyScriptErr maps them onto the shared taxonomy.
const (
	scriptErrAbsent   = "absent"
	scriptErrMismatch = "mismatch"
)

// incrEqScript runs server-side so there is no read-then-write race window:
// read the counter, assert it equals ARGV[1], increment by ARGV[2], return
// the prior value.
var incrEqScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
	return redis.error_reply('absent')
end
cur = tonumber(cur)
if cur ~= tonumber(ARGV[1]) then
	return redis.error_reply('mismatch')
end
redis.call('INCRBY', KEYS[1], ARGV[2])
return cur
`)

// RedisStore is the production Store backed by a Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: rdb}, nil
}

// CompareAndIncrement runs the incrEq script against the counter key.
func (s *RedisStore) CompareAndIncrement(ctx context.Context, key string, expected, delta int64) (int64, error) {
	prev, err := incrEqScript.Run(ctx, s.client, []string{key}, expected, delta).Int64()
	if err != nil {
		return 0, classifyScriptErr(key, err)
	}
	return prev, nil
}

// Provision creates the counter at zero, failing when the key exists.
func (s *RedisStore) Provision(ctx context.Context, key string) error {
	ok, err := s.client.SetNX(ctx, key, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to provision counter %q: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("counter %q already exists: %w", key, common.ErrConflict)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// classifyScriptErr maps the script's named errors onto the shared taxonomy;
// anything else is an infrastructure failure and passed through wrapped.
func classifyScriptErr(key string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, scriptErrAbsent):
		return fmt.Errorf("counter %q: %w", key, common.ErrNotFound)
	case strings.Contains(msg, scriptErrMismatch):
		return fmt.Errorf("counter %q: %w", key, common.ErrConflict)
	default:
		return fmt.Errorf("counter script failed for %q: %w", key, err)
	}
}
