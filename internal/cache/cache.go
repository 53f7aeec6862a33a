// Package cache - кэш ответов на запросы профиля/активности пользователя
// и хук инвалидации по URL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// QueryCache - кэш результатов запросов к бэкенду по ключу.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// InvalidateMatching удаляет ключи, содержащие любую из подстрок.
	// Возвращает число удалённых ключей.
	InvalidateMatching(ctx context.Context, substrings ...string) (int, error)
}

// Key строит ключ кэша: путь запроса + область видимости (обычно хэш токена),
// чтобы ответы разных пользователей не смешивались.
func Key(path, scope string) string {
	return path + "#" + scope
}

// TokenScope - короткий необратимый хэш токена для ключа кэша.
func TokenScope(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// invalidationRules: фрагмент URL ответа -> фрагменты ключей, которые надо сбросить.
// Изменение профиля делает устаревшим и /users/me.
var invalidationRules = []struct {
	urlPattern string
	keys       []string
}{
	{urlPattern: "/users/me", keys: []string{"/users/me"}},
	{urlPattern: "/profile", keys: []string{"/users/me", "/profile"}},
	{urlPattern: "/activity", keys: []string{"/activity"}},
}

// InvalidateForURL сбрасывает закэшированные профиль/активность, если URL
// ответа попадает под один из шаблонов. Ошибки только логируются: это удобство,
// а не часть контракта запроса.
func InvalidateForURL(ctx context.Context, c QueryCache, rawURL string, logger *zap.Logger) {
	if c == nil {
		return
	}
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}

	var keys []string
	for _, rule := range invalidationRules {
		if strings.Contains(path, rule.urlPattern) {
			keys = append(keys, rule.keys...)
		}
	}
	if len(keys) == 0 {
		return
	}

	removed, err := c.InvalidateMatching(ctx, keys...)
	if err != nil {
		if logger != nil {
			logger.Warn("Query cache invalidation failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	invalidationsTotal.Add(float64(removed))
	if logger != nil && removed > 0 {
		logger.Debug("Query cache invalidated", zap.String("path", path), zap.Strings("patterns", keys), zap.Int("removed", removed))
	}
}
