// Package tokenstate хранит время истечения текущего access-токена клиента.
//
// Состояние намеренно только в памяти: новый процесс начинает без знания о
// сроке токена, пока не увидит ответ с токеном.
package tokenstate

import (
	"sync"
	"time"
)

// Store - владелец времени истечения access-токена. Последняя запись выигрывает.
type Store struct {
	mu        sync.RWMutex
	expiresAt time.Time
	set       bool
	now       func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New создает пустой Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetExpiration запоминает абсолютное время истечения, перезаписывая прежнее.
func (s *Store) SetExpiration(t time.Time) {
	s.mu.Lock()
	s.expiresAt = t
	s.set = true
	s.mu.Unlock()
}

// Expiration возвращает сохранённое время; false, если ничего не сохранено.
func (s *Store) Expiration() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt, s.set
}

// Clear сбрасывает состояние (логаут, неудачное обновление).
func (s *Store) Clear() {
	s.mu.Lock()
	s.expiresAt = time.Time{}
	s.set = false
	s.mu.Unlock()
}

// IsNearExpiration сообщает, истекает ли токен раньше чем через buffer.
// Без сохранённого значения всегда false: отсутствие данных не должно
// запускать обновления.
func (s *Store) IsNearExpiration(buffer time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return false
	}
	return s.expiresAt.Before(s.now().Add(buffer))
}
