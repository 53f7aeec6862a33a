package session

import (
	"context"
	"testing"
	"time"

	"blog-web/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfile = &models.UserProfile{ID: 7, Nickname: "writer", Email: "w@example.com", Role: models.RoleUser}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)
	assert.Equal(t, StatusLoading, m.Snapshot().Status)

	require.NoError(t, m.Load(ctx))
	assert.Equal(t, StatusUnauthenticated, m.Snapshot().Status)

	require.NoError(t, m.SignIn(ctx, "opaque-token", testProfile))
	snap := m.Snapshot()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	require.NotNil(t, snap.Session)
	assert.Equal(t, uint64(7), snap.Session.UserID)
	assert.Equal(t, "opaque-token", snap.Session.AccessToken)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "writer", saved.Nickname)

	require.NoError(t, m.UpdateAccessToken(ctx, "next-token"))
	assert.Equal(t, "next-token", m.Snapshot().Session.AccessToken)

	require.NoError(t, m.MarkStale(ctx))
	assert.True(t, m.Snapshot().Session.IsStale())

	require.NoError(t, m.SignOut(ctx))
	snap = m.Snapshot()
	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Session)
	saved, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestManager_LoadRestoresSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, &AuthSession{UserID: 1, Nickname: "a", AccessToken: "t"}))

	m := NewManager(store, nil)
	require.NoError(t, m.Load(ctx))
	assert.Equal(t, StatusAuthenticated, m.Snapshot().Status)
}

func TestManager_SignInValidation(t *testing.T) {
	m := NewManager(nil, nil)
	assert.ErrorIs(t, m.SignIn(context.Background(), "", testProfile), models.ErrTokenMissing)
	assert.ErrorIs(t, m.SignIn(context.Background(), "t", nil), models.ErrInvalidProfile)
}

func TestManager_ModifyWithoutSessionIsNoop(t *testing.T) {
	m := NewManager(nil, nil)
	require.NoError(t, m.Load(context.Background()))
	require.NoError(t, m.MarkStale(context.Background()))
	assert.Nil(t, m.Snapshot().Session)
}

func TestManager_Subscribe(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, nil)
	ch, unsubscribe := m.Subscribe()

	first := <-ch
	assert.Equal(t, StatusLoading, first.Status)

	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.SignIn(ctx, "t", testProfile))

	// Подписчик не читал: остаётся только последний снимок
	select {
	case snap := <-ch:
		assert.Equal(t, StatusAuthenticated, snap.Status)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
	select {
	case snap := <-ch:
		t.Fatalf("unexpected extra snapshot: %+v", snap)
	default:
	}

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
	require.NoError(t, m.SignOut(ctx))
}
