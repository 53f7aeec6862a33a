package models

import "strings"

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// IsAdmin сравнивает роль без учёта регистра и префикса ROLE_,
// бэкенд отдаёт оба варианта ("ADMIN", "ROLE_ADMIN").
func IsAdmin(role string) bool {
	r := strings.ToUpper(strings.TrimSpace(role))
	r = strings.TrimPrefix(r, "ROLE_")
	return r == RoleAdmin
}
