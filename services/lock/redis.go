package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/yarcoin/marketplace/core"
)

const (
	redisKeyPrefix  = "yarcoin:lock:"
	redisRetryDelay = 25 * time.Millisecond
	releaseTimeout  = 2 * time.Second
)

// releaseScript deletes the key only if it still holds our token,
// so an expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis serializes access to keys across every process sharing the redis server.
// A lock expires after ttl even if its holder never releases it.
type Redis struct {
	client redis.UniversalClient
	wait   time.Duration
	ttl    time.Duration
	logger core.Logger
}

var _ core.Locker = (*Redis)(nil) // interface compliance check

func NewRedis(client redis.UniversalClient, wait, ttl time.Duration, logger core.Logger) *Redis {
	return &Redis{
		client: client,
		wait:   wait,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	rkey := redisKeyPrefix + key
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "waiting for lock")
			}
			return nil, core.NewPersistenceError(errors.Wrap(err, "acquiring redis lock"))
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, core.ErrBusy
		}

		t := time.NewTimer(redisRetryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Wrap(ctx.Err(), "waiting for lock")
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be done
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{rkey}, token).Err(); err != nil {
				l.logger.Warn("releasing redis lock", err, map[string]interface{}{"key": rkey})
			}
		})
	}, nil
}
