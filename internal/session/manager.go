package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/shared/authutils"
	"blog-web/shared/models"

	"go.uber.org/zap"
)

// Manager - владелец сессии приложения. Изменения публикуются подписчикам.
type Manager struct {
	mu      sync.Mutex
	status  Status
	session *AuthSession
	store   Store
	logger  *zap.Logger
	now     func() time.Time

	nextSubID int
	subs      map[int]chan Snapshot
}

// NewManager создает Manager в состоянии loading. Состояние из store
// подтягивает Load.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		status: StatusLoading,
		store:  store,
		logger: logger.Named("SessionManager"),
		now:    time.Now,
		subs:   make(map[int]chan Snapshot),
	}
}

// Load читает сохранённую сессию и завершает состояние loading.
func (m *Manager) Load(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("Failed to load session", zap.Error(err))
		m.set(StatusUnauthenticated, nil)
		return fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil {
		m.set(StatusUnauthenticated, nil)
		return nil
	}
	m.set(StatusAuthenticated, s)
	return nil
}

// Snapshot - текущее состояние.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{Status: m.status}
	if m.session != nil {
		cp := *m.session
		snap.Session = &cp
	}
	return snap
}

// SignIn открывает сессию по токену и уже полученному профилю.
func (m *Manager) SignIn(ctx context.Context, token string, profile *models.UserProfile) error {
	if token == "" {
		return models.ErrTokenMissing
	}
	if profile == nil {
		return models.ErrInvalidProfile
	}
	now := m.now()
	s := newAuthSession(token, profile, authutils.ExpirationOrDefault(token, now, authcookie.DefaultAccessTTL), now)
	m.mu.Lock()
	if err := m.store.Save(ctx, s); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.setLocked(StatusAuthenticated, s)
	m.mu.Unlock()

	m.logger.Info("Signed in", zap.Uint64("userID", s.UserID), zap.String("role", s.Role))
	return nil
}

// SignOut закрывает сессию.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	err := m.store.Clear(ctx)
	m.setLocked(StatusUnauthenticated, nil)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.Info("Signed out")
	return nil
}

// UpdateAccessToken переносит обновлённый токен в сессию (хук Refresher'а).
// Без открытой сессии ничего не делает.
func (m *Manager) UpdateAccessToken(ctx context.Context, token string) error {
	return m.modify(ctx, func(s *AuthSession) {
		s.AccessToken = token
		s.ExpiresAt = authutils.ExpirationOrDefault(token, m.now(), authcookie.DefaultAccessTTL)
		s.Error = ""
	})
}

// MarkStale ставит маркер RefreshAccessTokenError (хук Refresher'а на
// недействительную refresh-куку). Synchronizer закроет такую сессию.
func (m *Manager) MarkStale(ctx context.Context) error {
	return m.modify(ctx, func(s *AuthSession) { s.Error = RefreshAccessTokenError })
}

// modify меняет открытую сессию. Блокировка держится и на записи в store,
// чтобы параллельный SignOut не оставил в store старую сессию.
func (m *Manager) modify(ctx context.Context, fn func(s *AuthSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	fn(&cp)
	if err := m.store.Save(ctx, &cp); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.session = &cp
	m.publishLocked()
	return nil
}

// Subscribe возвращает канал снимков состояния и функцию отписки.
// Текущий снимок приходит сразу. Медленный подписчик видит только последний
// снимок: старые вытесняются.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Snapshot, 1)
	ch <- m.snapshotLocked()
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

func (m *Manager) set(status Status, s *AuthSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(status, s)
}

func (m *Manager) setLocked(status Status, s *AuthSession) {
	m.status = status
	m.session = s
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
