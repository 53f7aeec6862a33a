package handler

import (
	"context"
	"errors"
	"net/http"

	"blog-web/internal/authcookie"
	"blog-web/internal/client"
	"blog-web/internal/messaging"
	"blog-web/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionBackend - обмен refresh-токена на access-токен (client.BackendClient).
type SessionBackend interface {
	Reissue(ctx context.Context, refreshToken string) (*client.ReissueResult, error)
}

// ProfileFetcher - профиль по access-токену (client.ProfileFetcher).
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*models.UserProfile, error)
}

const msgNoRefreshToken = "No refresh token available"

// sessionCheck - POST /api/auth/session-check.
//
// Читает HttpOnly refresh-куку, обновляет токен на стороне сервера и сразу
// отдаёт профиль, чтобы клиенту не нужен был отдельный запрос.
func (h *Handler) sessionCheck(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.logger.With(zap.String("handler", "sessionCheck"))

	refreshToken, err := c.Cookie(authcookie.RefreshTokenName)
	if err != nil || refreshToken == "" {
		sessionChecksTotal.WithLabelValues("no_refresh_token").Inc()
		c.JSON(http.StatusUnauthorized, models.SessionCheckResponse{Success: false, Message: msgNoRefreshToken})
		return
	}

	res, err := h.backend.Reissue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrRefreshTokenExpired) {
			log.Info("Refresh token rejected by backend, clearing auth cookies")
			sessionChecksTotal.WithLabelValues("refresh_expired").Inc()
			http.SetCookie(c.Writer, h.cookieAttrs.Expired(authcookie.AccessTokenName))
			http.SetCookie(c.Writer, h.cookieAttrs.Expired(authcookie.RefreshTokenName))
			messaging.PublishAsync(h.events, messaging.NewSessionEvent(messaging.EventSessionRefreshExpired, 0, c.Request.URL.Path), h.logger)
			c.JSON(http.StatusUnauthorized, models.SessionCheckResponse{
				Success: false,
				Code:    models.CodeRefreshTokenExpired,
				Message: "Refresh token expired",
			})
			return
		}
		log.Error("Session refresh failed", zap.Error(err))
		sessionChecksTotal.WithLabelValues("backend_error").Inc()
		c.JSON(http.StatusBadGateway, models.SessionCheckResponse{Success: false, Message: "Failed to refresh session"})
		return
	}

	profile, err := h.profiles.FetchProfile(ctx, res.AccessToken)
	if err != nil {
		log.Error("Failed to fetch user profile after refresh", zap.Error(err))
		sessionChecksTotal.WithLabelValues("profile_error").Inc()
		c.JSON(http.StatusBadGateway, models.SessionCheckResponse{Success: false, Message: "Failed to fetch user profile"})
		return
	}

	if len(res.SetCookies) > 0 {
		for _, v := range res.SetCookies {
			c.Writer.Header().Add("Set-Cookie", v)
		}
	} else {
		maxAge := authcookie.MaxAgeFromToken(res.AccessToken, h.now())
		http.SetCookie(c.Writer, h.cookieAttrs.Access(res.AccessToken, maxAge))
	}

	messaging.PublishAsync(h.events, messaging.NewSessionEvent(messaging.EventSessionRefreshed, profile.ID, c.Request.URL.Path), h.logger)
	sessionChecksTotal.WithLabelValues("success").Inc()
	log.Debug("Session restored", zap.Uint64("userID", profile.ID))

	c.JSON(http.StatusOK, models.SessionCheckResponse{
		Success:       true,
		Authorization: res.AccessToken,
		UserProfile:   profile,
	})
}
