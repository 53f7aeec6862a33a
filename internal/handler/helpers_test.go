package handler

import (
	"context"
	"testing"
	"time"

	"blog-web/internal/client"
	"blog-web/internal/messaging"
	"blog-web/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	claims := &models.Claims{
		Role: models.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

type mockRoleFetcher struct {
	mock.Mock
}

func (m *mockRoleFetcher) FetchRole(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type mockSessionBackend struct {
	mock.Mock
}

func (m *mockSessionBackend) Reissue(ctx context.Context, refreshToken string) (*client.ReissueResult, error) {
	args := m.Called(ctx, refreshToken)
	res, _ := args.Get(0).(*client.ReissueResult)
	return res, args.Error(1)
}

type mockProfileFetcher struct {
	mock.Mock
}

func (m *mockProfileFetcher) FetchProfile(ctx context.Context, token string) (*models.UserProfile, error) {
	args := m.Called(ctx, token)
	p, _ := args.Get(0).(*models.UserProfile)
	return p, args.Error(1)
}

// recordingPublisher складывает события в канал: PublishAsync шлёт их из горутины.
type recordingPublisher struct {
	events chan messaging.SessionEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan messaging.SessionEvent, 16)}
}

func (p *recordingPublisher) Publish(_ context.Context, e messaging.SessionEvent) error {
	p.events <- e
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) next(t *testing.T) messaging.SessionEvent {
	t.Helper()
	select {
	case e := <-p.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("no session event published")
		return messaging.SessionEvent{}
	}
}
