package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// lockClient is the subset of *redis.Client used for locking.
type lockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Locker implements single-holder locks with SET NX PX and a token-checked
// release.
type Locker struct {
	client lockClient
}

func NewLocker(client lockClient) *Locker {
	return &Locker{client: client}
}

// Acquire tries once to take key for ttl. ok is false when another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis.Locker.Acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("redis.Locker: failed to release lock")
			return
		}
		if n == 0 {
			log.Warn().Str("key", key).Msg("redis.Locker: lock expired before release")
		}
	}

	return release, true, nil
}
