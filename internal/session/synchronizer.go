package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/tokenstate"
	"blog-web/shared/authutils"
	"blog-web/shared/models"

	"go.uber.org/zap"
)

// Checker - session-check (client.SessionChecker).
type Checker interface {
	CheckSession(ctx context.Context) (*models.SessionCheckResponse, error)
}

// AccessTokenCookie - кука access-токена (client.CookieStore).
type AccessTokenCookie interface {
	AccessToken() string
	SetAccessToken(token string, maxAge int)
	DeleteAccessToken()
}

// Navigator - текущая "страница" и переходы.
type Navigator interface {
	// Location - текущий путь с query, например "/posts?page=2".
	Location() string
	Redirect(target string)
}

// Outcome - итог одной попытки синхронизации.
type Outcome int

const (
	// OutcomeSkipped - попытка уже идёт.
	OutcomeSkipped Outcome = iota
	// OutcomeSignedIn - сессия восстановлена.
	OutcomeSignedIn
	// OutcomeLoggedOut - refresh-кука истекла, пользователь не залогинен.
	OutcomeLoggedOut
	// OutcomeAnonymous - refresh-куки нет вовсе.
	OutcomeAnonymous
	// OutcomeFailed - проверка не удалась, состояние не менялось.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSignedIn:
		return "signed_in"
	case OutcomeLoggedOut:
		return "logged_out"
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// HomePath - главная.
const HomePath = "/"

// StaleSessionRedirect - куда уводит принудительный выход.
var StaleSessionRedirect = HomePath + "?error=" + RefreshAccessTokenError

// Synchronizer восстанавливает сессию приложения по refresh-куке, когда
// сессии нет, и закрывает сессию с маркером RefreshAccessTokenError.
type Synchronizer struct {
	manager *Manager
	checker Checker
	cookies AccessTokenCookie
	tokens  *tokenstate.Store
	nav     Navigator
	logger  *zap.Logger
	now     func() time.Time

	// attempting - не больше одной попытки session-check одновременно.
	attempting atomic.Bool
	wg         sync.WaitGroup
}

// NewSynchronizer создает Synchronizer. tokens может быть nil.
func NewSynchronizer(manager *Manager, checker Checker, cookies AccessTokenCookie, tokens *tokenstate.Store, nav Navigator, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		manager: manager,
		checker: checker,
		cookies: cookies,
		tokens:  tokens,
		nav:     nav,
		logger:  logger.Named("SessionSynchronizer"),
		now:     time.Now,
	}
}

// Run обрабатывает изменения сессии до отмены ctx. Попытки синхронизации
// идут в фоне; Run дожидается их перед выходом.
func (s *Synchronizer) Run(ctx context.Context) error {
	snapshots, unsubscribe := s.manager.Subscribe()
	defer unsubscribe()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			s.dispatch(ctx, snap)
		}
	}
}

func (s *Synchronizer) dispatch(ctx context.Context, snap Snapshot) {
	if snap.Session.IsStale() {
		s.forceSignOut(ctx)
		return
	}
	if snap.Status != StatusUnauthenticated || s.attempting.Load() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.Sync(ctx)
	}()
}

// HandleSnapshot синхронно обрабатывает один снимок (для CLI).
func (s *Synchronizer) HandleSnapshot(ctx context.Context, snap Snapshot) (Outcome, error) {
	if snap.Session.IsStale() {
		s.forceSignOut(ctx)
		return OutcomeLoggedOut, nil
	}
	if snap.Status != StatusUnauthenticated {
		return OutcomeSkipped, nil
	}
	return s.Sync(ctx)
}

// Sync делает одну попытку session-check. Если попытка уже идёт -
// OutcomeSkipped.
func (s *Synchronizer) Sync(ctx context.Context) (Outcome, error) {
	if !s.attempting.CompareAndSwap(false, true) {
		return OutcomeSkipped, nil
	}
	defer s.attempting.Store(false)

	resp, err := s.checker.CheckSession(ctx)
	switch {
	case errors.Is(err, models.ErrRefreshTokenExpired):
		s.logger.Info("Refresh token expired, user is logged out")
		s.cookies.DeleteAccessToken()
		if s.tokens != nil {
			s.tokens.Clear()
		}
		s.redirectHomeIfNeeded()
		return OutcomeLoggedOut, nil
	case errors.Is(err, models.ErrNoRefreshToken):
		s.logger.Debug("No refresh token, staying anonymous")
		return OutcomeAnonymous, nil
	case err != nil:
		s.logger.Warn("Session check failed", zap.Error(err))
		return OutcomeFailed, err
	}

	token := resp.Authorization
	now := s.now()
	// Set-Cookie ответа мог не дойти до jar (другой домен, Secure по http)
	if s.cookies.AccessToken() != token {
		s.logger.Debug("Access token cookie mismatch after session check, setting it")
		s.cookies.SetAccessToken(token, authcookie.MaxAgeFromToken(token, now))
	}
	if s.tokens != nil {
		s.tokens.SetExpiration(authutils.ExpirationOrDefault(token, now, authcookie.DefaultAccessTTL))
	}

	if err := s.manager.SignIn(ctx, token, resp.UserProfile); err != nil {
		s.logger.Error("Failed to establish session after session check", zap.Error(err))
		return OutcomeFailed, err
	}
	return OutcomeSignedIn, nil
}

func (s *Synchronizer) forceSignOut(ctx context.Context) {
	s.logger.Info("Session is stale, signing out")
	if err := s.manager.SignOut(ctx); err != nil {
		s.logger.Error("Failed to sign out stale session", zap.Error(err))
	}
	s.cookies.DeleteAccessToken()
	if s.tokens != nil {
		s.tokens.Clear()
	}
	if s.nav != nil {
		s.nav.Redirect(StaleSessionRedirect)
	}
}

// redirectHomeIfNeeded уводит на главную, если мы не на ней и в query нет
// error (иначе зациклимся).
func (s *Synchronizer) redirectHomeIfNeeded() {
	if s.nav == nil {
		return
	}
	loc, err := url.Parse(s.nav.Location())
	if err != nil {
		s.nav.Redirect(HomePath)
		return
	}
	if loc.Path == HomePath || loc.Path == "" || loc.Query().Has("error") {
		return
	}
	s.nav.Redirect(HomePath)
}
