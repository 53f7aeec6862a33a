package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store - где хранится сессия приложения между запусками.
type Store interface {
	// Load возвращает nil, nil, если сессии нет.
	Load(ctx context.Context) (*AuthSession, error)
	Save(ctx context.Context, s *AuthSession) error
	Clear(ctx context.Context) error
}

// MemoryStore - Store в памяти.
type MemoryStore struct {
	mu      sync.Mutex
	session *AuthSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.session = &cp
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// Credentials - значения auth-кук, которые blogctl переносит между запусками.
type Credentials struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// fileState - содержимое файла состояния.
type fileState struct {
	Session     *AuthSession `json:"session,omitempty"`
	Credentials Credentials  `json:"credentials"`
}

// FileStore - Store в JSON-файле (права 0600). Заодно хранит Credentials.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore создает FileStore. Файл появится при первой записи.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStatePath - $XDG_CONFIG_HOME/blogctl/state.json.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "blogctl", "state.json"), nil
}

// Path - путь к файлу состояния.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (*AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.read()
	if err != nil {
		return nil, err
	}
	return st.Session, nil
}

func (f *FileStore) Save(_ context.Context, s *AuthSession) error {
	return f.update(func(st *fileState) { st.Session = s })
}

func (f *FileStore) Clear(_ context.Context) error {
	return f.update(func(st *fileState) { st.Session = nil })
}

// LoadCredentials читает сохранённые куки.
func (f *FileStore) LoadCredentials() (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.read()
	if err != nil {
		return Credentials{}, err
	}
	return st.Credentials, nil
}

// SaveCredentials перезаписывает сохранённые куки.
func (f *FileStore) SaveCredentials(c Credentials) error {
	return f.update(func(st *fileState) { st.Credentials = c })
}

func (f *FileStore) update(fn func(st *fileState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.read()
	if err != nil {
		return err
	}
	fn(&st)
	return f.write(st)
}

func (f *FileStore) read() (fileState, error) {
	var st fileState
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read state file %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("corrupted state file %s: %w", f.path, err)
	}
	return st, nil
}

// write пишет через временный файл и rename, чтобы не оставить обрезанный JSON.
func (f *FileStore) write(st fileState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
