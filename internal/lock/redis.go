package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// releaseScript deletes the key only if it still holds our token.
//
// A plain DEL could remove a lease that already expired and was taken by
// another instance. Comparing and deleting inside one Lua script is atomic
// on the Redis server.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with a lease per key: SET key token NX PX ttl.
// The TTL bounds how long a crashed holder can block others.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client: client,
		prefix: "photovault:lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		logger: logger,
	}
}

// Acquire polls SET NX until it wins or ctx ends.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + key
	token := xid.New().String()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: redis: %v", ErrUnavailable, err)
		}
		if ok {
			return r.releaser(fullKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Redis) releaser(key, token string) func() {
	return func() {
		// The request context may already be cancelled; release on a
		// short context of its own so the lease doesn't linger until TTL.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			r.logger.Warn("releasing lock", "key", key, "error", err)
		}
	}
}
