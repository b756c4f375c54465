package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Guard shared by every process using the same redis.
type Redis struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration, log zerolog.Logger) *Redis {
	if prefix == "" {
		prefix = "govgen"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{redis: rdb, prefix: prefix, ttl: ttl, log: log}
}

var _ Guard = (*Redis)(nil)

func (r *Redis) key(pageID string) string {
	return fmt.Sprintf("%s:inflight:%s", r.prefix, pageID)
}

func (r *Redis) Acquire(ctx context.Context, pageID string) (func(), error) {
	key := r.key(pageID)
	token := uuid.NewString()

	ok, err := r.redis.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire in-flight lease: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be done
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.redis, []string{key}, token).Err(); err != nil {
				r.log.Warn().Err(err).Str("page_id", pageID).Msg("failed to release in-flight lease")
			}
		})
	}, nil
}
