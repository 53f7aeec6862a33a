package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"blog-web/internal/authcookie"
)

// CookieStore - доступ к auth-кукам в cookie jar клиента.
// Jar общий с http.Client'ами клиента, поэтому Set-Cookie бэкенда меняют
// значения в обход CookieStore; читать всегда нужно через AccessToken().
type CookieStore struct {
	jar   http.CookieJar
	site  *url.URL
	attrs authcookie.Attributes
}

// NewCookieStore создает CookieStore для siteURL. Если jar nil - создаётся новый.
func NewCookieStore(jar http.CookieJar, siteURL string, attrs authcookie.Attributes) (*CookieStore, error) {
	site, err := url.Parse(siteURL)
	if err != nil || site.Scheme == "" || site.Host == "" {
		return nil, fmt.Errorf("invalid site URL %q", siteURL)
	}
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
	}
	return &CookieStore{jar: jar, site: site, attrs: attrs}, nil
}

// Jar возвращает общий cookie jar.
func (s *CookieStore) Jar() http.CookieJar {
	return s.jar
}

func (s *CookieStore) value(name string) string {
	for _, c := range s.jar.Cookies(s.site) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// AccessToken - текущее значение куки authorization ("" если нет).
func (s *CookieStore) AccessToken() string {
	return s.value(authcookie.AccessTokenName)
}

// SetAccessToken записывает access-токен с общими атрибутами.
func (s *CookieStore) SetAccessToken(token string, maxAge int) {
	s.jar.SetCookies(s.site, []*http.Cookie{s.attrs.Access(token, maxAge)})
}

// DeleteAccessToken удаляет куку authorization. Атрибуты те же, что при
// установке, поэтому одного удаления достаточно.
func (s *CookieStore) DeleteAccessToken() {
	s.jar.SetCookies(s.site, []*http.Cookie{s.attrs.Expired(authcookie.AccessTokenName)})
}

// HasRefreshCredential сообщает, есть ли refresh-кука.
func (s *CookieStore) HasRefreshCredential() bool {
	return s.value(authcookie.RefreshTokenName) != ""
}

// RefreshCredential нужен только для сохранения состояния blogctl между запусками.
func (s *CookieStore) RefreshCredential() string {
	return s.value(authcookie.RefreshTokenName)
}

// SetRefreshCredential восстанавливает refresh-куку (сессионную, без Max-Age).
func (s *CookieStore) SetRefreshCredential(token string) {
	s.jar.SetCookies(s.site, []*http.Cookie{s.attrs.Refresh(token, 0)})
}

// DeleteRefreshCredential удаляет refresh-куку.
func (s *CookieStore) DeleteRefreshCredential() {
	s.jar.SetCookies(s.site, []*http.Cookie{s.attrs.Expired(authcookie.RefreshTokenName)})
}
