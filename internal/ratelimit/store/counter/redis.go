package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loyalgate/pkg/platform/sentinel"
)

// incrScript sets the expiry on the first increment, and repairs a key that somehow lost
// its TTL, in the same atomic step as the increment.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore counts in Redis and is safe to share across instances.
type RedisStore struct {
	client redis.Scripter
}

func NewRedis(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	n, err := incrScript.Run(ctx, s.client, []string{key}, ms).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return n, nil
}
