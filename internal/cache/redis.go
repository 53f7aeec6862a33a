package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisPrefix = "blogweb:query:"
	scanBatch          = 100
)

// RedisCache - QueryCache в Redis; общий для всех инстансов edge-сервиса.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisCache создает RedisCache. Пустой prefix - префикс по умолчанию.
func NewRedisCache(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger.Named("RedisQueryCache")}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateMatching проходит SCAN по каждому шаблону и удаляет найденное пачками.
func (r *RedisCache) InvalidateMatching(ctx context.Context, substrings ...string) (int, error) {
	removed := 0
	for _, sub := range substrings {
		match := r.prefix + "*" + escapeGlob(sub) + "*"
		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
			if err != nil {
				return removed, fmt.Errorf("redis scan %q: %w", match, err)
			}
			if len(keys) > 0 {
				n, err := r.client.Del(ctx, keys...).Result()
				if err != nil {
					return removed, fmt.Errorf("redis del: %w", err)
				}
				removed += int(n)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	if removed > 0 {
		r.logger.Debug("Invalidated cached queries", zap.Strings("patterns", substrings), zap.Int("removed", removed))
	}
	return removed, nil
}

// escapeGlob экранирует спецсимволы шаблона SCAN MATCH.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
