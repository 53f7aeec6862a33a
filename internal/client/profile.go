package client

import (
	"context"
	"encoding/json"
	"time"

	"blog-web/internal/cache"
	"blog-web/shared/models"

	"go.uber.org/zap"
)

// DefaultProfileTTL - сколько edge держит профиль в кэше.
const DefaultProfileTTL = 5 * time.Minute

// ProfileSource - откуда берётся профиль (BackendClient).
type ProfileSource interface {
	FetchProfile(ctx context.Context, accessToken string) (*models.UserProfile, error)
}

// ProfileFetcher - профиль пользователя через кэш запросов.
// Ошибки кэша не ломают запрос: идём в бэкенд напрямую.
type ProfileFetcher struct {
	source ProfileSource
	cache  cache.QueryCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileFetcher создает ProfileFetcher. queryCache может быть nil.
func NewProfileFetcher(source ProfileSource, queryCache cache.QueryCache, ttl time.Duration, logger *zap.Logger) *ProfileFetcher {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileFetcher{source: source, cache: queryCache, ttl: ttl, logger: logger.Named("ProfileFetcher")}
}

// FetchProfile возвращает профиль владельца токена.
func (p *ProfileFetcher) FetchProfile(ctx context.Context, accessToken string) (*models.UserProfile, error) {
	key := cache.Key(UsersMePath, cache.TokenScope(accessToken))

	if p.cache != nil {
		data, ok, err := p.cache.Get(ctx, key)
		switch {
		case err != nil:
			p.logger.Warn("Profile cache read failed", zap.Error(err))
		case ok:
			var profile models.UserProfile
			if err := json.Unmarshal(data, &profile); err == nil {
				return &profile, nil
			}
			p.logger.Warn("Corrupted profile cache entry, refetching", zap.String("key", key))
		}
	}

	profile, err := p.source.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if data, err := json.Marshal(profile); err == nil {
			if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
				p.logger.Warn("Profile cache write failed", zap.Error(err))
			}
		}
	}
	return profile, nil
}

// FetchRole - роль владельца токена.
func (p *ProfileFetcher) FetchRole(ctx context.Context, accessToken string) (string, error) {
	profile, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return profile.Role, nil
}
