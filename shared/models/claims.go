package models

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Claims - поля access-токена, которые выдаёт бэкенд блога.
// Бэкенд кладёт идентификатор пользователя в sub, роль - в отдельный claim.
type Claims struct {
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID возвращает числовой идентификатор из sub, если он там есть.
func (c *Claims) UserID() (uint64, bool) {
	if c == nil || c.Subject == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
