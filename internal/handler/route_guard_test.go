package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/messaging"
	"blog-web/shared/authutils"
	"blog-web/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultClassifier() *PathClassifier {
	return NewPathClassifier(
		[]string{"/", "/login", "/signup", "/posts", "/posts/*"},
		[]string{"/dashboard", "/settings", "/posts/new", "/posts/*/edit"},
		[]string{"/admin", "/admin/*", "/admin/*/*"},
		[]string{"/login", "/signup"},
	)
}

type guardFixture struct {
	router *gin.Engine
	roles  *mockRoleFetcher
	events *recordingPublisher
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	verifier, err := authutils.NewJWTVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	f := &guardFixture{roles: &mockRoleFetcher{}, events: newRecordingPublisher()}
	attrs := authcookie.NewAttributes(false, "", false)
	guard := NewRouteGuard(verifier, f.roles, defaultClassifier(), attrs, f.events, zap.NewNop())

	f.router = gin.New()
	f.router.Use(guard.Middleware())
	f.router.NoRoute(func(c *gin.Context) {
		role, _ := c.Get(models.RoleContextKey)
		_, hasClaims := c.Get(models.ClaimsContextKey)
		c.JSON(http.StatusOK, gin.H{"role": role, "claims": hasClaims})
	})
	return f
}

func (f *guardFixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: authcookie.AccessTokenName, Value: token})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPathClassifier_Classify(t *testing.T) {
	c := defaultClassifier()
	cases := map[string]PathClass{
		"/":                 ClassPublic,
		"/posts":            ClassPublic,
		"/posts/hello":      ClassPublic,
		"/posts/new":        ClassAuthRequired,
		"/posts/hello/edit": ClassAuthRequired,
		"/dashboard":        ClassAuthRequired,
		"/dashboard/":       ClassAuthRequired,
		"/settings":         ClassAuthRequired,
		"/admin":            ClassAdminRequired,
		"/admin/users":      ClassAdminRequired,
		"/admin/users/7":    ClassAdminRequired,
		"/unknown/page":     ClassPublic,
		"/posts/a/b/c":      ClassPublic,
	}
	for p, want := range cases {
		assert.Equal(t, want, c.Classify(p), p)
	}
	assert.True(t, c.IsAuthPage("/login"))
	assert.False(t, c.IsAuthPage("/login/extra"))
}

func TestShouldBypass(t *testing.T) {
	for _, p := range []string{"/api", "/api/posts", "/_next/static/chunk.js", "/_next/image/x", "/favicon.ico", "/robots.txt", "/images/logo.png", "/health", "/metrics"} {
		assert.True(t, shouldBypass(p), p)
	}
	for _, p := range []string{"/", "/dashboard", "/apiary", "/admin/users"} {
		assert.False(t, shouldBypass(p), p)
	}
}

func TestLoginRedirectURL(t *testing.T) {
	assert.Equal(t, "/login?redirect=%2Fdashboard", LoginRedirectURL("/dashboard"))
	assert.Equal(t, "/login?redirect=%2Fposts%2F1%2Fedit", LoginRedirectURL("/posts/1/edit"))
	assert.Equal(t, "/login?redirect=%2Fdashboard", LoginRedirectURL("//dashboard"))
	assert.Equal(t, "/login?redirect=%2Fevil.example.com%2Fdashboard", LoginRedirectURL("//evil.example.com/dashboard"))
	assert.Equal(t, "/login?redirect=%2Fdashboard", LoginRedirectURL("/posts/../dashboard"))
}

func TestRouteGuard_NoTokenDoubleSlashPath(t *testing.T) {
	f := newGuardFixture(t)

	w := f.get("//dashboard", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fdashboard", w.Header().Get("Location"))
}

func TestRouteGuard_NoToken(t *testing.T) {
	f := newGuardFixture(t)

	w := f.get("/posts/hello", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.get("/dashboard", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fdashboard", w.Header().Get("Location"))

	w = f.get("/admin/users", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fadmin%2Fusers", w.Header().Get("Location"))
}

func TestRouteGuard_InvalidTokenClearsCookie(t *testing.T) {
	f := newGuardFixture(t)
	badToken := signToken(t, "another-secret", time.Hour)

	for _, p := range []string{"/", "/dashboard"} {
		w := f.get(p, badToken)
		assert.Equal(t, http.StatusFound, w.Code, p)
		assert.Equal(t, LoginRedirectURL(p), w.Header().Get("Location"), p)

		setCookie := w.Header().Get("Set-Cookie")
		assert.True(t, strings.HasPrefix(setCookie, authcookie.AccessTokenName+"=;"), setCookie)
		assert.Contains(t, setCookie, "Max-Age=0")
	}

	w := f.get("/dashboard", signToken(t, testSecret, -time.Minute))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestRouteGuard_ValidToken(t *testing.T) {
	f := newGuardFixture(t)
	token := signToken(t, testSecret, time.Hour)

	w := f.get("/login", token)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, HomePath, w.Header().Get("Location"))

	w = f.get("/dashboard", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":null,"claims":true}`, w.Body.String())

	w = f.get("/posts/hello", token)
	assert.Equal(t, http.StatusOK, w.Code)
	f.roles.AssertNotCalled(t, "FetchRole", mock.Anything, mock.Anything)
}

func TestRouteGuard_AdminPaths(t *testing.T) {
	f := newGuardFixture(t)
	admin := signToken(t, testSecret, time.Hour)
	user := signToken(t, testSecret, time.Hour)
	broken := signToken(t, testSecret, time.Hour)

	f.roles.On("FetchRole", mock.Anything, admin).Return("ROLE_ADMIN", nil)
	f.roles.On("FetchRole", mock.Anything, user).Return("USER", nil)
	f.roles.On("FetchRole", mock.Anything, broken).Return("", errors.New("backend down"))

	w := f.get("/admin/users", admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"role":"ROLE_ADMIN","claims":true}`, w.Body.String())

	w = f.get("/admin", user)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, ForbiddenPath, w.Header().Get("Location"))
	event := f.events.next(t)
	assert.Equal(t, messaging.EventAccessForbidden, event.Type)
	assert.Equal(t, uint64(42), event.UserID)
	assert.Equal(t, "/admin", event.Path)

	w = f.get("/admin/users/7", broken)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, ForbiddenPath, w.Header().Get("Location"))

	f.roles.AssertExpectations(t)
}

func TestRouteGuard_BypassSkipsChecks(t *testing.T) {
	f := newGuardFixture(t)
	badToken := signToken(t, "another-secret", time.Hour)

	for _, p := range []string{"/api/posts", "/_next/static/app.js", "/favicon.ico"} {
		w := f.get(p, badToken)
		assert.Equal(t, http.StatusOK, w.Code, p)
		assert.Empty(t, w.Header().Get("Set-Cookie"), p)
	}
}
