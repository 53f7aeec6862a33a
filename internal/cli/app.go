// Package cli - команды blogctl поверх клиентских компонентов сессии.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/cache"
	"blog-web/internal/client"
	"blog-web/internal/config"
	"blog-web/internal/session"
	"blog-web/internal/tokenstate"
	"blog-web/shared/authutils"

	"go.uber.org/zap"
)

// App - собранный клиент: куки, сессия, API-клиент и синхронизатор.
// Состояние живёт в FileStore между запусками.
type App struct {
	cfg     *config.ClientConfig
	logger  *zap.Logger
	state   *session.FileStore
	cookies *client.CookieStore
	tokens  *tokenstate.Store
	manager *session.Manager
	api     *client.APIClient
	checker *client.SessionChecker
	syncer  *session.Synchronizer
	nav     *session.LocationNavigator
}

// NewApp собирает App по конфигурации. Сеть и файл состояния не трогает:
// это делает Open.
func NewApp(cfg *config.ClientConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	statePath := cfg.StateFile
	if statePath == "" {
		p, err := session.DefaultStatePath()
		if err != nil {
			return nil, err
		}
		statePath = p
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		state:  session.NewFileStore(statePath),
		tokens: tokenstate.New(),
		nav:    session.NewLocationNavigator(session.HomePath),
	}
	a.manager = session.NewManager(a.state, logger)

	var err error
	a.cookies, err = client.NewCookieStore(nil, cfg.SiteURL, cfg.CookieAttributes())
	if err != nil {
		return nil, err
	}

	// Refresh и session-check идут мимо APIClient, но через тот же jar
	plain := &http.Client{
		Jar:       a.cookies.Jar(),
		Timeout:   cfg.Timeout,
		Transport: client.NewRetryTransport(nil, logger),
	}

	refresher, err := client.NewRefresher(cfg.APIBaseURL, plain, a.cookies, a.tokens, logger,
		client.WithOnRefreshed(func(token string) {
			if err := a.manager.UpdateAccessToken(context.Background(), token); err != nil {
				logger.Warn("Failed to store refreshed access token in session", zap.Error(err))
			}
		}),
		client.WithOnInvalid(func() {
			if err := a.manager.MarkStale(context.Background()); err != nil {
				logger.Warn("Failed to mark session stale", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	matcher := client.ExpiredTokenMatcher{
		Codes:              cfg.ExpiredTokenCodes,
		LegacyMessageMatch: cfg.LegacyMessageMatch,
		LegacyMessages:     client.DefaultExpiredTokenMatcher().LegacyMessages,
	}
	a.api, err = client.NewAPIClient(client.APIClientConfig{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.Timeout,
		RefreshBuffer: cfg.RefreshBuffer,
		Matcher:       &matcher,
		MaxRetries:    cfg.MaxRetries,
	}, a.cookies, a.tokens, refresher, cache.NewMemoryCache(), logger)
	if err != nil {
		return nil, err
	}

	a.checker, err = client.NewSessionChecker(cfg.SiteURL, plain, logger)
	if err != nil {
		return nil, err
	}
	a.syncer = session.NewSynchronizer(a.manager, a.checker, a.cookies, a.tokens, a.nav, logger)
	return a, nil
}

// Open восстанавливает куки и сессию из файла состояния.
func (a *App) Open(ctx context.Context) error {
	creds, err := a.state.LoadCredentials()
	if err != nil {
		return err
	}
	now := time.Now()
	if creds.RefreshToken != "" {
		a.cookies.SetRefreshCredential(creds.RefreshToken)
	}
	if creds.AccessToken != "" {
		if maxAge := authcookie.MaxAgeFromToken(creds.AccessToken, now); maxAge > 0 {
			a.cookies.SetAccessToken(creds.AccessToken, maxAge)
			a.tokens.SetExpiration(authutils.ExpirationOrDefault(creds.AccessToken, now, authcookie.DefaultAccessTTL))
		}
	}
	return a.manager.Load(ctx)
}

// Close закрывает сессию с маркером RefreshAccessTokenError, если он
// появился за время команды, и сохраняет куки.
func (a *App) Close(ctx context.Context) error {
	snap := a.manager.Snapshot()
	if snap.Session.IsStale() {
		if _, err := a.syncer.HandleSnapshot(ctx, snap); err != nil {
			a.logger.Warn("Failed to close stale session", zap.Error(err))
		}
	}
	return a.saveCredentials()
}

func (a *App) saveCredentials() error {
	creds := session.Credentials{
		AccessToken:  a.cookies.AccessToken(),
		RefreshToken: a.cookies.RefreshCredential(),
	}
	if err := a.state.SaveCredentials(creds); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}

// Redirected - куда синхронизатор отправил бы браузер ("" если никуда).
func (a *App) Redirected() string {
	if loc := a.nav.Location(); loc != session.HomePath {
		return loc
	}
	return ""
}

// userError - ошибка для вывода пользователю без стека обёрток.
func userError(err error) error {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Message != "" {
			return fmt.Errorf("request failed (%d): %s", statusErr.StatusCode, statusErr.Message)
		}
		return fmt.Errorf("request failed with status %d", statusErr.StatusCode)
	}
	return err
}
