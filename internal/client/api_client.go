package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/cache"
	"blog-web/internal/inflight"
	"blog-web/internal/tokenstate"
	"blog-web/shared/authutils"
	"blog-web/shared/models"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout - общий таймаут запроса, включая повторы транспорта.
	DefaultTimeout = 30 * time.Second
	// DefaultRefreshBuffer - за сколько до истечения токен обновляется заранее.
	DefaultRefreshBuffer = 60 * time.Second
)

// TokenRefresher - то, что APIClient вызывает для обновления токена.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

// APIClientConfig - настройки APIClient.
type APIClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RefreshBuffer time.Duration
	Matcher       *ExpiredTokenMatcher
	// Transport - базовый транспорт под RetryTransport (nil - http.DefaultTransport).
	Transport http.RoundTripper
	// MaxRetries - повторы идемпотентных запросов; 0 - по умолчанию.
	MaxRetries uint64
}

// APIClient - HTTP-клиент бэкенда блога с авторизацией по куке.
//
// Перед запросом токен обновляется заранее, если скоро истекает. Ответ 401 с
// признаком истёкшего токена обновляет токен и повторяет запрос ровно один раз.
// Все обновления идут через один inflight.Group: одновременно не больше одного.
type APIClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	cookies    *CookieStore
	tokens     *tokenstate.Store
	refresher  TokenRefresher
	flight     inflight.Group[string]
	matcher    ExpiredTokenMatcher
	buffer     time.Duration
	cache      cache.QueryCache
	logger     *zap.Logger
	now        func() time.Time

	mu            sync.Mutex
	observedToken string
}

// NewAPIClient создает APIClient. queryCache может быть nil.
func NewAPIClient(cfg APIClientConfig, cookies *CookieStore, tokens *tokenstate.Store, refresher TokenRefresher, queryCache cache.QueryCache, logger *zap.Logger) (*APIClient, error) {
	base, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	baseURL, _ := url.Parse(base)

	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	buffer := cfg.RefreshBuffer
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	matcher := DefaultExpiredTokenMatcher()
	if cfg.Matcher != nil {
		matcher = *cfg.Matcher
	}

	transport := NewRetryTransport(cfg.Transport, logger)
	if cfg.MaxRetries > 0 {
		transport.MaxRetries = cfg.MaxRetries
	}

	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Jar:       cookies.Jar(),
			Timeout:   timeout,
			Transport: transport,
		},
		cookies:   cookies,
		tokens:    tokens,
		refresher: refresher,
		matcher:   matcher,
		buffer:    buffer,
		cache:     queryCache,
		logger:    logger.Named("APIClient"),
		now:       time.Now,
	}, nil
}

// normalizeBaseURL проверяет URL и убирает завершающий слэш.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// NewRequest строит запрос к пути относительно BaseURL. body (если не nil)
// кодируется в JSON.
func (c *APIClient) NewRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do отправляет запрос.
//
// Ошибки: models.ErrRefreshTokenInvalid (refresh-кука недействительна, нужно
// разлогиниться) и models.ErrAccessTokenRefreshFailed (временный сбой
// обновления после 401). Прочие ответы, включая нераспознанные 401,
// возвращаются как есть.
func (c *APIClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req, err := replayable(req)
	if err != nil {
		return nil, err
	}
	log := c.logger.With(zap.String("method", req.Method), zap.String("url", req.URL.String()))

	if c.tokens.IsNearExpiration(c.buffer) {
		log.Debug("Access token is near expiration, refreshing before request")
		if _, err := c.refresh(ctx); err != nil {
			if errors.Is(err, models.ErrRefreshTokenInvalid) {
				return nil, err
			}
			// Запрос уйдёт со старым токеном, 401 обработаем ниже
			log.Warn("Proactive token refresh failed, continuing with current token", zap.Error(err))
		}
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body, err := readAndRestore(resp)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to read 401 response body: %w", err)
	}
	if !c.matcher.Matches(body) {
		return resp, nil
	}
	resp.Body.Close()

	log.Info("Access token expired, refreshing and retrying once")
	token, err := c.refresh(ctx)
	if err != nil {
		if errors.Is(err, models.ErrRefreshTokenInvalid) {
			return nil, err
		}
		c.cookies.DeleteAccessToken()
		log.Warn("Reactive token refresh failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrAccessTokenRefreshFailed, err)
	}
	if token == "" {
		return nil, models.ErrAccessTokenRefreshFailed
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild request for retry: %w", err)
	}
	return c.send(retry)
}

// send - одна отправка: bearer из куки, затем хуки ответа.
func (c *APIClient) send(req *http.Request) (*http.Response, error) {
	if token := c.cookies.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	cache.InvalidateForURL(req.Context(), c.cache, req.URL.String(), c.logger)
	c.observeAccessToken()
	return resp, nil
}

// refresh - обновление через общий inflight: одновременные вызовы ждут один запрос.
func (c *APIClient) refresh(ctx context.Context) (string, error) {
	token, shared, err := c.flight.Do(ctx, c.refresher.RefreshAccessToken)
	if shared {
		c.logger.Debug("Joined in-flight token refresh")
	}
	return token, err
}

// observeAccessToken переносит exp нового токена из куки в tokenstate,
// если бэкенд сменил токен через Set-Cookie.
func (c *APIClient) observeAccessToken() {
	token := c.cookies.AccessToken()
	if token == "" {
		return
	}
	c.mu.Lock()
	changed := token != c.observedToken
	c.observedToken = token
	c.mu.Unlock()

	if _, known := c.tokens.Expiration(); changed || !known {
		if exp, err := authutils.ExpirationUnverified(token); err == nil {
			c.tokens.SetExpiration(exp)
		} else if !known {
			c.tokens.SetExpiration(c.now().Add(authcookie.DefaultAccessTTL))
		}
	}
}

// GetJSON выполняет GET и декодирует конверт {data: ...} в out.
func (c *APIClient) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON выполняет POST с JSON-телом и декодирует конверт {data: ...} в out.
func (c *APIClient) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

// StatusError - неуспешный ответ бэкенда.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned status %d (code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Unwrap сопоставляет статус с общими ошибками.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return models.ErrUnauthorized
	case http.StatusForbidden:
		return models.ErrForbidden
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusBadRequest:
		return models.ErrBadRequest
	}
	if e.StatusCode >= 500 {
		return models.ErrBackendUnavailable
	}
	return nil
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr models.APIError
		_ = json.Unmarshal(body, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &StatusError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("invalid response format: %w", err)
	}
	payload := envelope.Data
	if len(payload) == 0 || string(payload) == "null" {
		// Ответ без конверта
		payload = body
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("invalid response format: %w", err)
	}
	return nil
}

// replayable гарантирует, что тело запроса можно отправить повторно.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req.Clone(req.Context()), nil
	}
	payload, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(payload))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	clone.ContentLength = int64(len(payload))
	return clone, nil
}

// readAndRestore читает тело и подменяет его копией, чтобы вызывающий мог прочитать его снова.
func readAndRestore(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
