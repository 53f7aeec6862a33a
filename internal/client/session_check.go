package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"blog-web/shared/models"

	"go.uber.org/zap"
)

// SessionCheckPath - same-origin маршрут восстановления сессии на edge.
const SessionCheckPath = "/api/auth/session-check"

// SessionChecker вызывает session-check на edge-сервисе.
type SessionChecker struct {
	checkURL   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSessionChecker создает клиента. httpClient должен использовать jar с
// refresh-кукой: маршрут читает её сам.
func NewSessionChecker(siteURL string, httpClient *http.Client, logger *zap.Logger) (*SessionChecker, error) {
	base, err := normalizeBaseURL(siteURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		return nil, fmt.Errorf("session checker requires an http client with a cookie jar")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionChecker{
		checkURL:   base + SessionCheckPath,
		httpClient: httpClient,
		logger:     logger.Named("SessionChecker"),
	}, nil
}

// CheckSession восстанавливает сессию по refresh-куке.
//
// models.ErrRefreshTokenExpired и models.ErrNoRefreshToken - штатный
// "не залогинен". Прочие ошибки - сбой проверки.
func (s *SessionChecker) CheckSession(ctx context.Context) (*models.SessionCheckResponse, error) {
	log := s.logger.With(zap.String("url", s.checkURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.checkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("internal error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		log.Warn("Session check request failed", zap.Error(err))
		return nil, fmt.Errorf("session check failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read session check response: %w", err)
	}

	var resp models.SessionCheckResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Warn("Failed to unmarshal session check response", zap.Int("status", httpResp.StatusCode), zap.ByteString("body", body), zap.Error(err))
		return nil, fmt.Errorf("invalid session check response (status %d): %w", httpResp.StatusCode, err)
	}

	switch {
	case resp.Code == models.CodeRefreshTokenExpired:
		log.Debug("Session check: refresh token expired")
		return &resp, models.ErrRefreshTokenExpired
	case httpResp.StatusCode == http.StatusUnauthorized:
		log.Debug("Session check: no refresh token", zap.String("message", resp.Message))
		return &resp, models.ErrNoRefreshToken
	case httpResp.StatusCode != http.StatusOK || !resp.Success:
		log.Warn("Session check failed", zap.Int("status", httpResp.StatusCode), zap.String("message", resp.Message))
		return &resp, fmt.Errorf("session check failed with status %d: %s", httpResp.StatusCode, resp.Message)
	case resp.Authorization == "" || resp.UserProfile == nil:
		return &resp, fmt.Errorf("session check response is incomplete")
	}
	return &resp, nil
}
