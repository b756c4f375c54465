package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyLimit = 1000

// Redis stores items as plain string keys under a prefix and keeps the
// history as a capped list, newest first.
type Redis struct {
	redis  *redis.Client
	prefix string
}

var _ Backend = (*Redis)(nil)

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "govgen"
	}
	return &Redis{redis: rdb, prefix: prefix}
}

func (r *Redis) Client() *redis.Client {
	return r.redis
}

func (r *Redis) itemKey(key string) string {
	return r.prefix + ":kv:" + key
}

func (r *Redis) historyKey() string {
	return r.prefix + ":history"
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.redis.Get(ctx, r.itemKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.redis.Set(ctx, r.itemKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) LogAction(ctx context.Context, e AuditEntry) error {
	if strings.TrimSpace(e.MetaJSON) == "" || !json.Valid([]byte(e.MetaJSON)) {
		e.MetaJSON = "{}"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.LPush(ctx, r.historyKey(), b)
	pipe.LTrim(ctx, r.historyKey(), 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push audit entry: %w", err)
	}
	return nil
}

func (r *Redis) RecentActions(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := r.redis.LRange(ctx, r.historyKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	out := make([]AuditEntry, 0, len(raw))
	for _, item := range raw {
		var e AuditEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.redis.Close()
}
