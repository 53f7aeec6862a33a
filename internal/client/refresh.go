package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/tokenstate"
	"blog-web/shared/authutils"
	"blog-web/shared/models"

	"go.uber.org/zap"
)

// ReissuePath - эндпоинт бэкенда для обновления access-токена.
const ReissuePath = "/api/auth/reissue"

// Refresher - однократная попытка обновить access-токен по refresh-куке.
// Дедупликацию одновременных вызовов делает вызывающий (APIClient).
type Refresher struct {
	reissueURL  string
	httpClient  *http.Client
	cookies     *CookieStore
	tokens      *tokenstate.Store
	logger      *zap.Logger
	now         func() time.Time
	onRefreshed func(token string)
	onInvalid   func()
}

// RefresherOption настраивает Refresher.
type RefresherOption func(*Refresher)

// WithOnRefreshed - хук после успешного обновления (например, обновить сессию приложения).
func WithOnRefreshed(fn func(token string)) RefresherOption {
	return func(r *Refresher) { r.onRefreshed = fn }
}

// WithOnInvalid - хук, когда refresh-кука оказалась недействительной.
func WithOnInvalid(fn func()) RefresherOption {
	return func(r *Refresher) { r.onInvalid = fn }
}

// WithRefresherClock подменяет время (для тестов).
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher создает Refresher. httpClient должен использовать тот же jar,
// что и cookies, но не APIClient: иначе обновление перехватывалось бы само собой.
func NewRefresher(apiBaseURL string, httpClient *http.Client, cookies *CookieStore, tokens *tokenstate.Store, logger *zap.Logger, opts ...RefresherOption) (*Refresher, error) {
	base, err := normalizeBaseURL(apiBaseURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Jar: cookies.Jar(), Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Refresher{
		reissueURL: base + ReissuePath,
		httpClient: httpClient,
		cookies:    cookies,
		tokens:     tokens,
		logger:     logger.Named("Refresher"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RefreshAccessToken делает одну попытку обновления.
//
// Успех - новый токен. 400/401/403 - models.ErrRefreshTokenInvalid, кука
// authorization удалена. Остальное - ошибка, оборачивающая models.ErrRefreshUnavailable.
func (r *Refresher) RefreshAccessToken(ctx context.Context) (string, error) {
	log := r.logger.With(zap.String("url", r.reissueURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.reissueURL, nil)
	if err != nil {
		log.Error("Failed to create reissue HTTP request", zap.Error(err))
		return "", fmt.Errorf("%w: creating request: %v", models.ErrRefreshUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log.Debug("Sending reissue request")
	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		log.Warn("Reissue request failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: request timed out: %v", models.ErrRefreshUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", models.ErrRefreshUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Warn("Failed to read reissue response body", zap.Int("status", httpResp.StatusCode), zap.Error(err))
		return "", fmt.Errorf("%w: reading response: %v", models.ErrRefreshUnavailable, err)
	}

	switch httpResp.StatusCode {
	case http.StatusOK:
		// ниже
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		log.Info("Refresh credential rejected", zap.Int("status", httpResp.StatusCode))
		r.cookies.DeleteAccessToken()
		r.tokens.Clear()
		if r.onInvalid != nil {
			r.onInvalid()
		}
		return "", models.ErrRefreshTokenInvalid
	default:
		log.Warn("Unexpected reissue response", zap.Int("status", httpResp.StatusCode), zap.ByteString("body", body))
		return "", fmt.Errorf("%w: unexpected status %d", models.ErrRefreshUnavailable, httpResp.StatusCode)
	}

	var resp models.APIResponse[models.ReissueData]
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Warn("Failed to unmarshal reissue response", zap.ByteString("body", body), zap.Error(err))
		return "", fmt.Errorf("%w: invalid response format: %v", models.ErrRefreshUnavailable, err)
	}
	token := strings.TrimSpace(resp.Data.Authorization)
	if token == "" {
		log.Warn("Reissue response has no token")
		return "", fmt.Errorf("%w: empty token in response", models.ErrRefreshUnavailable)
	}

	now := r.now()
	r.tokens.SetExpiration(authutils.ExpirationOrDefault(token, now, authcookie.DefaultAccessTTL))
	// Бэкенд обычно уже поставил куку через Set-Cookie; если нет - ставим сами
	if r.cookies.AccessToken() != token {
		r.cookies.SetAccessToken(token, authcookie.MaxAgeFromToken(token, now))
	}
	if r.onRefreshed != nil {
		r.onRefreshed(token)
	}

	log.Info("Access token refreshed")
	return token, nil
}
