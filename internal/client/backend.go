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
	"blog-web/shared/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// UsersMePath - профиль текущего пользователя.
const UsersMePath = "/api/users/me"

var profileValidator = validator.New(validator.WithRequiredStructEnabled())

// ReissueResult - результат обновления токена на стороне edge.
type ReissueResult struct {
	AccessToken string
	// SetCookies - заголовки Set-Cookie бэкенда, edge пересылает их браузеру как есть.
	SetCookies []string
}

// BackendClient - серверный (без jar) клиент бэкенда блога для edge-сервиса.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackendClient создает клиента бэкенда.
func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*BackendClient, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL for backend: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BackendClient{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: NewRetryTransport(nil, logger),
		},
		logger: logger.Named("BackendClient"),
	}, nil
}

// BaseURL - адрес бэкенда без завершающего слэша.
func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

// Reissue обменивает refresh-токен на новый access-токен.
// 400/401/403 - models.ErrRefreshTokenExpired.
func (c *BackendClient) Reissue(ctx context.Context, refreshToken string) (*ReissueResult, error) {
	reissueURL := c.baseURL + ReissuePath
	log := c.logger.With(zap.String("url", reissueURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reissueURL, nil)
	if err != nil {
		log.Error("Failed to create reissue HTTP request", zap.Error(err))
		return nil, fmt.Errorf("internal error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.AddCookie(&http.Cookie{Name: authcookie.RefreshTokenName, Value: refreshToken})

	log.Debug("Sending reissue request to backend")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error("HTTP request to backend failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: request timed out: %v", models.ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Error("Failed to read reissue response body", zap.Int("status", httpResp.StatusCode), zap.Error(err))
		return nil, fmt.Errorf("%w: reading response: %v", models.ErrBackendUnavailable, err)
	}

	switch httpResp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		log.Info("Backend rejected refresh token", zap.Int("status", httpResp.StatusCode))
		return nil, models.ErrRefreshTokenExpired
	default:
		log.Warn("Received error response from backend", zap.Int("status", httpResp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: unexpected status %d", models.ErrBackendUnavailable, httpResp.StatusCode)
	}

	var resp models.APIResponse[models.ReissueData]
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Error("Failed to unmarshal reissue response", zap.ByteString("body", body), zap.Error(err))
		return nil, fmt.Errorf("%w: invalid response format: %v", models.ErrBackendUnavailable, err)
	}
	token := strings.TrimSpace(resp.Data.Authorization)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token in reissue response", models.ErrBackendUnavailable)
	}

	log.Info("Access token reissued by backend")
	return &ReissueResult{
		AccessToken: token,
		SetCookies:  httpResp.Header.Values("Set-Cookie"),
	}, nil
}

// FetchProfile получает и валидирует профиль по access-токену.
func (c *BackendClient) FetchProfile(ctx context.Context, accessToken string) (*models.UserProfile, error) {
	profileURL := c.baseURL + UsersMePath
	log := c.logger.With(zap.String("url", profileURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("internal error creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error("HTTP request for user profile failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", models.ErrBackendUnavailable, err)
	}

	switch httpResp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, models.ErrUnauthorized
	case http.StatusForbidden:
		return nil, models.ErrForbidden
	default:
		log.Warn("Received non-OK status for user profile", zap.Int("status", httpResp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: unexpected status %d", models.ErrBackendUnavailable, httpResp.StatusCode)
	}

	profile, err := decodeProfile(body)
	if err != nil {
		log.Warn("Invalid user profile from backend", zap.ByteString("body", body), zap.Error(err))
		return nil, err
	}
	log.Debug("User profile fetched", zap.Uint64("userID", profile.ID))
	return profile, nil
}

// decodeProfile принимает и конверт {data: ...}, и голый профиль.
func decodeProfile(body []byte) (*models.UserProfile, error) {
	var envelope models.APIResponse[*models.UserProfile]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidProfile, err)
	}
	profile := envelope.Data
	if profile == nil {
		profile = &models.UserProfile{}
		if err := json.Unmarshal(body, profile); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidProfile, err)
		}
	}
	if err := profileValidator.Struct(profile); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidProfile, err)
	}
	return profile, nil
}
