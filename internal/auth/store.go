package auth

import (
	"context"
	"sync"
)

// Session is the persisted part of an authenticated session.
type Session struct {
	Username string
	Access   string
	Refresh  string
}

// TokenStore persists the session between runs.
type TokenStore interface {
	LoadSession(ctx context.Context) (*Session, error)
	SaveSession(ctx context.Context, s Session) error
	ClearSession(ctx context.Context) error
}

// MemoryStore is a TokenStore that keeps the session in memory only.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

func (m *MemoryStore) LoadSession(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *MemoryStore) ClearSession(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
