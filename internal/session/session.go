// Package session - сессия приложения (кто залогинен) и её синхронизация с
// refresh-кукой через session-check.
package session

import (
	"time"

	"blog-web/shared/models"
)

// Status - состояние сессии приложения.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// RefreshAccessTokenError - маркер устаревшей сессии: обновить токен не
// удалось, сессию нужно закрыть.
const RefreshAccessTokenError = "RefreshAccessTokenError"

// AuthSession - сессия приложения.
type AuthSession struct {
	UserID      uint64    `json:"id"`
	Nickname    string    `json:"nickname"`
	Email       string    `json:"email,omitempty"`
	Image       string    `json:"image,omitempty"`
	Role        string    `json:"role"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	SignedInAt  time.Time `json:"signedInAt"`
	Error       string    `json:"error,omitempty"`
}

// IsStale - сессия помечена маркером RefreshAccessTokenError.
func (s *AuthSession) IsStale() bool {
	return s != nil && s.Error == RefreshAccessTokenError
}

// IsAdmin - роль администратора.
func (s *AuthSession) IsAdmin() bool {
	return s != nil && models.IsAdmin(s.Role)
}

func newAuthSession(token string, profile *models.UserProfile, expiresAt, now time.Time) *AuthSession {
	return &AuthSession{
		UserID:      profile.ID,
		Nickname:    profile.Nickname,
		Email:       profile.Email,
		Image:       profile.Image,
		Role:        profile.Role,
		AccessToken: token,
		ExpiresAt:   expiresAt,
		SignedInAt:  now,
	}
}

// Snapshot - состояние сессии в момент публикации.
type Snapshot struct {
	Status  Status
	Session *AuthSession
}
