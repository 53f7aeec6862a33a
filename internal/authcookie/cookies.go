// Package authcookie - имена и атрибуты auth-кук.
//
// Один и тот же набор атрибутов используется и при установке, и при удалении
// куки: браузер (и cookiejar) удаляет куку, только если Domain и Path совпадают
// с теми, что были при установке.
package authcookie

import (
	"net/http"
	"strings"
	"time"

	"blog-web/shared/authutils"
)

const (
	// AccessTokenName - access-токен, читается клиентским кодом.
	AccessTokenName = "authorization"
	// RefreshTokenName - refresh-токен, HttpOnly.
	RefreshTokenName = "refreshToken"

	// DefaultAccessTTL - срок куки, если exp из токена достать не удалось.
	DefaultAccessTTL = time.Hour
)

// Attributes - атрибуты auth-кук.
type Attributes struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// IsProduction определяет продакшн так же, как фронтенд:
// VERCEL_ENV важнее NODE_ENV (preview-деплой на Vercel собирается с NODE_ENV=production).
func IsProduction(nodeEnv, vercelEnv string) bool {
	if vercelEnv != "" {
		return vercelEnv == "production"
	}
	return nodeEnv == "production"
}

// NewAttributes собирает атрибуты. Домен выставляется только в продакшне,
// иначе кука привязана к хосту.
func NewAttributes(production bool, domain string, secure bool) Attributes {
	attrs := Attributes{
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	domain = strings.TrimPrefix(strings.TrimSpace(domain), ".")
	if production && domain != "" {
		attrs.Domain = "." + domain
	}
	return attrs
}

func (a Attributes) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     a.Path,
		Domain:   a.Domain,
		MaxAge:   maxAge,
		Secure:   a.Secure,
		HttpOnly: httpOnly,
		SameSite: a.SameSite,
	}
}

// Access - кука access-токена (HttpOnly=false).
func (a Attributes) Access(token string, maxAge int) *http.Cookie {
	return a.cookie(AccessTokenName, token, maxAge, false)
}

// Refresh - кука refresh-токена (HttpOnly=true).
func (a Attributes) Refresh(token string, maxAge int) *http.Cookie {
	return a.cookie(RefreshTokenName, token, maxAge, true)
}

// Expired - удаляющая кука с теми же атрибутами.
func (a Attributes) Expired(name string) *http.Cookie {
	c := a.cookie(name, "", -1, name == RefreshTokenName)
	c.Expires = time.Unix(0, 0)
	return c
}

// MaxAgeFromToken - секунды до exp токена; DefaultAccessTTL, если exp не читается.
func MaxAgeFromToken(token string, now time.Time) int {
	exp := authutils.ExpirationOrDefault(token, now, DefaultAccessTTL)
	seconds := int(exp.Sub(now) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}
