package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/tokenstate"
	"blog-web/shared/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("client-test-secret")

func makeToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := &models.Claims{
		Role: models.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

// fakeBackend - бэкенд блога: /api/auth/reissue и защищённые ресурсы под /api/.
type fakeBackend struct {
	srv *httptest.Server

	reissueCalls  atomic.Int32
	resourceCalls atomic.Int32
	unauthorized  atomic.Int32

	mu                sync.Mutex
	validToken        string
	nextToken         string
	reissueStatus     int
	reissueSetsCookie bool
	reissueDelay      time.Duration
	// reissueWaitFor: reissue отвечает только после стольких отданных 401.
	reissueWaitFor   int32
	unauthorizedBody string
	rotateTo         string
	// rejectIssued: выданный reissue токен ресурсы не принимают.
	rejectIssued bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		reissueStatus:    http.StatusOK,
		unauthorizedBody: `{"code":"J004","message":"access token expired"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(ReissuePath, fb.handleReissue)
	mux.HandleFunc("/api/", fb.handleResource)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBackend) handleReissue(w http.ResponseWriter, r *http.Request) {
	fb.reissueCalls.Add(1)
	fb.mu.Lock()
	status, next, setCookie, delay, waitFor := fb.reissueStatus, fb.nextToken, fb.reissueSetsCookie, fb.reissueDelay, fb.reissueWaitFor
	fb.mu.Unlock()

	if waitFor > 0 {
		deadline := time.Now().Add(5 * time.Second)
		for fb.unauthorized.Load() < waitFor && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if _, err := r.Cookie(authcookie.RefreshTokenName); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token missing"})
		return
	}
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"message": "reissue failed"})
		return
	}
	if setCookie {
		http.SetCookie(w, &http.Cookie{Name: authcookie.AccessTokenName, Value: next, Path: "/"})
	}
	fb.set(func(fb *fakeBackend) {
		if !fb.rejectIssued {
			fb.validToken = next
		}
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]string{"authorization": next}})
}

func (fb *fakeBackend) handleResource(w http.ResponseWriter, r *http.Request) {
	fb.resourceCalls.Add(1)
	fb.mu.Lock()
	valid, body, rotateTo := fb.validToken, fb.unauthorizedBody, fb.rotateTo
	fb.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid || valid == "" {
		fb.unauthorized.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, body)
		return
	}
	if rotateTo != "" {
		http.SetCookie(w, &http.Cookie{Name: authcookie.AccessTokenName, Value: rotateTo, Path: "/"})
	}
	payload, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"echo":   string(payload),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testClient struct {
	api       *APIClient
	refresher *Refresher
	cookies   *CookieStore
	tokens    *tokenstate.Store
	invalid   atomic.Int32
	refreshed atomic.Int32
}

func newTestClient(t *testing.T, fb *fakeBackend) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	tc := &testClient{tokens: tokenstate.New()}
	tc.cookies, err = NewCookieStore(jar, fb.srv.URL, authcookie.NewAttributes(false, "", false))
	require.NoError(t, err)
	tc.cookies.SetRefreshCredential("refresh-credential")

	tc.refresher, err = NewRefresher(fb.srv.URL, &http.Client{Jar: jar, Timeout: 5 * time.Second}, tc.cookies, tc.tokens, nil,
		WithOnInvalid(func() { tc.invalid.Add(1) }),
		WithOnRefreshed(func(string) { tc.refreshed.Add(1) }),
	)
	require.NoError(t, err)

	tc.api, err = NewAPIClient(APIClientConfig{BaseURL: fb.srv.URL}, tc.cookies, tc.tokens, tc.refresher, nil, nil)
	require.NoError(t, err)
	fastRetries(tc.api)
	return tc
}

// fastRetries укорачивает задержки повторов в тестах.
func fastRetries(c *APIClient) {
	if rt, ok := c.httpClient.Transport.(*RetryTransport); ok {
		rt.InitialInterval = time.Millisecond
		rt.MaxInterval = 5 * time.Millisecond
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(body))
}
