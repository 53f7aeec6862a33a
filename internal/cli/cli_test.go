package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/config"
	"blog-web/internal/session"
	"blog-web/shared/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makeToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "5",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("cli-test-secret"))
	require.NoError(t, err)
	return signed
}

// blogBackend - бэкенд и edge в одном сервере: login, reissue, users/me, session-check.
type blogBackend struct {
	srv *httptest.Server

	mu          sync.Mutex
	validToken  string
	nextToken   string
	refresh     string
	logoutCalls int
}

func newBlogBackend(t *testing.T) *blogBackend {
	t.Helper()
	b := &blogBackend{validToken: makeToken(t, time.Hour), refresh: "rt-1"}
	b.nextToken = makeToken(t, time.Hour)

	profile := models.UserProfile{ID: 5, Nickname: "author", Email: "author@example.com", Role: "USER"}
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	refreshOK := func(r *http.Request) bool {
		c, err := r.Cookie(authcookie.RefreshTokenName)
		return err == nil && c.Value == b.refresh
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "author@example.com" || req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, jsonObj{"code": "A001", "message": "invalid credentials"})
			return
		}
		b.mu.Lock()
		token := b.validToken
		b.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: authcookie.RefreshTokenName, Value: b.refresh, Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, jsonObj{"data": jsonObj{"authorization": token}})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logoutCalls++
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/auth/reissue", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !refreshOK(r) {
			writeJSON(w, http.StatusUnauthorized, jsonObj{"code": "J005", "message": "refresh token expired"})
			return
		}
		b.validToken = b.nextToken
		writeJSON(w, http.StatusOK, jsonObj{"data": jsonObj{"authorization": b.validToken}})
	})
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		valid := r.Header.Get("Authorization") == "Bearer "+b.validToken
		b.mu.Unlock()
		if !valid {
			writeJSON(w, http.StatusUnauthorized, jsonObj{"code": models.CodeAccessTokenExpired, "message": "access token expired"})
			return
		}
		writeJSON(w, http.StatusOK, jsonObj{"data": profile})
	})
	mux.HandleFunc("POST /api/auth/session-check", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(authcookie.RefreshTokenName); err != nil {
			writeJSON(w, http.StatusUnauthorized, models.SessionCheckResponse{Message: "No refresh token available"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if !refreshOK(r) {
			writeJSON(w, http.StatusUnauthorized, models.SessionCheckResponse{Code: models.CodeRefreshTokenExpired})
			return
		}
		b.validToken = b.nextToken
		writeJSON(w, http.StatusOK, models.SessionCheckResponse{Success: true, Authorization: b.validToken, UserProfile: &profile})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

type jsonObj = map[string]interface{}

func (b *blogBackend) expireAccessToken(t *testing.T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validToken = makeToken(t, time.Hour)
}

func (b *blogBackend) revokeRefresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = "revoked"
}

func testConfig(t *testing.T, b *blogBackend) *config.ClientConfig {
	t.Helper()
	return &config.ClientConfig{
		NodeEnv:            "development",
		SiteURL:            b.srv.URL,
		APIBaseURL:         b.srv.URL,
		StateFile:          filepath.Join(t.TempDir(), "state.json"),
		Timeout:            5 * time.Second,
		RefreshBuffer:      time.Minute,
		MaxRetries:         1,
		ExpiredTokenCodes:  []string{models.CodeAccessTokenExpired},
		LegacyMessageMatch: true,
	}
}

func run(t *testing.T, cfg *config.ClientConfig, stdin string, args ...string) (string, error) {
	t.Helper()
	r := NewRunner(func(context.Context) (*App, error) {
		return NewApp(cfg, zap.NewNop())
	})
	var out bytes.Buffer
	r.Root.SetOut(&out)
	r.Root.SetErr(&out)
	r.Root.SetIn(strings.NewReader(stdin))
	r.Root.SetArgs(args)
	err := r.Execute(context.Background())
	return out.String(), err
}

func storedSession(t *testing.T, cfg *config.ClientConfig) *session.AuthSession {
	t.Helper()
	s, err := session.NewFileStore(cfg.StateFile).Load(context.Background())
	require.NoError(t, err)
	return s
}

func TestLoginPersistsSession(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)

	out, err := run(t, cfg, "", "login", "-e", "author@example.com", "-p", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as author (USER)")

	s := storedSession(t, cfg)
	require.NotNil(t, s)
	assert.Equal(t, uint64(5), s.UserID)

	creds, err := session.NewFileStore(cfg.StateFile).LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "rt-1", creds.RefreshToken)
	assert.NotEmpty(t, creds.AccessToken)

	out, err = run(t, cfg, "", "session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "authenticated"`)
	assert.Contains(t, out, `"nickname": "author"`)

	out, err = run(t, cfg, "", "me")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "author@example.com"`)
}

func TestLoginPromptsForCredentials(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)

	orig := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("secret"), nil }
	t.Cleanup(func() { readPassword = orig })

	out, err := run(t, cfg, "author@example.com\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email: ")
	assert.Contains(t, out, "Signed in as author")
}

func TestLoginRejected(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)

	_, err := run(t, cfg, "", "login", "-e", "author@example.com", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Nil(t, storedSession(t, cfg))
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)
	_, err := run(t, cfg, "", "login", "-e", "author@example.com", "-p", "secret")
	require.NoError(t, err)

	b.expireAccessToken(t)
	out, err := run(t, cfg, "", "me")
	require.NoError(t, err)
	assert.Contains(t, out, `"nickname": "author"`)

	s := storedSession(t, cfg)
	require.NotNil(t, s)
	b.mu.Lock()
	assert.Equal(t, b.validToken, s.AccessToken)
	b.mu.Unlock()
}

func TestRevokedRefreshSignsOut(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)
	_, err := run(t, cfg, "", "login", "-e", "author@example.com", "-p", "secret")
	require.NoError(t, err)

	b.expireAccessToken(t)
	b.revokeRefresh()
	_, err = run(t, cfg, "", "me")
	require.ErrorIs(t, err, models.ErrRefreshTokenInvalid)

	assert.Nil(t, storedSession(t, cfg))
	out, err := run(t, cfg, "", "session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "unauthenticated"`)
}

func TestSessionSync(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)

	out, err := run(t, cfg, "", "session", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Session sync: anonymous")

	require.NoError(t, session.NewFileStore(cfg.StateFile).SaveCredentials(session.Credentials{RefreshToken: "rt-1"}))
	out, err = run(t, cfg, "", "session", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Session sync: signed_in")
	require.NotNil(t, storedSession(t, cfg))

	b.revokeRefresh()
	out, err = run(t, cfg, "", "session", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Session sync: logged_out")
	assert.Nil(t, storedSession(t, cfg))
}

func TestLogout(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)
	_, err := run(t, cfg, "", "login", "-e", "author@example.com", "-p", "secret")
	require.NoError(t, err)

	out, err := run(t, cfg, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	b.mu.Lock()
	assert.Equal(t, 1, b.logoutCalls)
	b.mu.Unlock()

	assert.Nil(t, storedSession(t, cfg))
	creds, err := session.NewFileStore(cfg.StateFile).LoadCredentials()
	require.NoError(t, err)
	assert.Empty(t, creds.AccessToken)
	assert.Empty(t, creds.RefreshToken)
}

func TestGetPrintsStatusAndBody(t *testing.T) {
	b := newBlogBackend(t)
	cfg := testConfig(t, b)
	_, err := run(t, cfg, "", "login", "-e", "author@example.com", "-p", "secret")
	require.NoError(t, err)

	out, err := run(t, cfg, "", "get", "/api/users/me")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "HTTP 200\n"), out)
	assert.Contains(t, out, `"nickname":"author"`)

	out, err = run(t, cfg, "", "get", "/api/missing")
	require.Error(t, err)
	assert.Contains(t, out, "HTTP 404")
}
