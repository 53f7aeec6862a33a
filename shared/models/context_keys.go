package models

import "github.com/gin-gonic/gin"

const (
	// ClaimsContextKey - ключ gin.Context для проверенных claims (ставит Edge Route Guard).
	ClaimsContextKey = "authClaims"
	// RoleContextKey - роль, полученная от бэкенда для admin-маршрутов.
	RoleContextKey = "authRole"
)

// GetClaims достаёт claims, положенные guard'ом. false, если запрос анонимный.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
