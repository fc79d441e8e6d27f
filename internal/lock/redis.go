package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by a single Redis instance.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	poll   time.Duration
	prefix string
}

// NewRedis returns a Redis locker. ttl bounds how long a crashed holder can
// block others; poll is the retry interval while waiting.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, ttl: ttl, poll: 25 * time.Millisecond, prefix: "lock:"}
}

// NewRedisClient dials addr and returns a locker using it along with the
// client, which the caller closes on shutdown.
func NewRedisClient(addr, password string, ttl time.Duration) (*Redis, *redis.Client) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedis(c, ttl), c
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, err
		}
		if ok {
			break
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}

	return func() {
		// Release even if the caller's ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{k}, token).Err(); err != nil {
			log.Warn().Err(err).Str("component", "lock").Str("key", k).Msg("release failed; lease will expire")
		}
	}, nil
}
