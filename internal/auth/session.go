package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnauthenticated is returned when there is no session to use or renew,
	// including while the operator is on the login surface.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrSessionTerminated is returned to every caller waiting on a refresh
	// that failed. The session is gone and the operator must log in again.
	ErrSessionTerminated = errors.New("session terminated")
)

// DefaultRefreshSkew is how long before expiry an access token is renewed.
const DefaultRefreshSkew = 30 * time.Second

// Manager owns the token pair and coordinates its renewal. At most one
// refresh is in flight at any time; concurrent callers share its outcome.
type Manager struct {
	transport Transport
	store     TokenStore
	skew      time.Duration
	now       func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	session    Session
	stale      bool
	entry      bool
	terminated chan struct{}
	closed     bool
	hooks      []func(error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists the session in s.
func WithStore(s TokenStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithRefreshSkew sets how long before expiry an access token is renewed.
func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) { m.skew = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager on the login surface with no session.
func NewManager(t Transport, opts ...Option) *Manager {
	m := &Manager{
		transport:  t,
		store:      &MemoryStore{},
		skew:       DefaultRefreshSkew,
		now:        time.Now,
		entry:      true,
		terminated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login exchanges credentials for a token pair and leaves the login surface.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	toks, err := m.transport.Login(ctx, username, password)
	if err != nil {
		return err
	}

	s := Session{Username: username, Access: toks.Access, Refresh: toks.Refresh}
	m.start(s)
	if err := m.store.SaveSession(ctx, s); err != nil {
		slog.Warn("failed to persist session", "user", username, "error", err)
	}

	slog.Info("user logged in", "user", username)
	return nil
}

// Restore loads a persisted session. It reports whether one was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	s, err := m.store.LoadSession(ctx)
	if err != nil {
		return false, fmt.Errorf("loading session: %w", err)
	}
	if s == nil || s.Access == "" {
		return false, nil
	}
	m.start(*s)
	return true, nil
}

func (m *Manager) start(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.stale = false
	m.entry = false
	if m.closed {
		m.terminated = make(chan struct{})
		m.closed = false
	}
}

// Logout drops the session without signalling termination.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	user := m.session.Username
	m.session = Session{}
	m.stale = false
	m.entry = true
	m.mu.Unlock()

	if err := m.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	slog.Info("user logged out", "user", user)
	return nil
}

// Username returns the identity of the current session.
func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Username
}

// Role returns the role claimed by the current access token, or "" when
// there is none or it cannot be read. The backend remains the authority.
func (m *Manager) Role() string {
	m.mu.Lock()
	tok := m.session.Access
	m.mu.Unlock()

	if tok == "" {
		return ""
	}
	claims, err := InspectToken(tok)
	if err != nil {
		return ""
	}
	return claims.Role
}

// OnEntrySurface reports whether the operator is on the login surface.
func (m *Manager) OnEntrySurface() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry
}

// Terminated returns a channel that is closed when the current session is
// terminated by a failed refresh.
func (m *Manager) Terminated() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

// OnTerminate registers fn to be called with the cause whenever a session is
// terminated.
func (m *Manager) OnTerminate(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// MarkStale flags the current access token as unusable so that the next
// Token call refreshes it first.
func (m *Manager) MarkStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = true
}

// Token returns a usable access token, refreshing first if the current one is
// flagged stale or about to expire.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.entry || m.session.Access == "" {
		err := m.entryErr()
		m.mu.Unlock()
		return "", err
	}
	tok := m.session.Access
	needed := m.stale || expiresWithin(tok, m.now(), m.skew)
	m.mu.Unlock()

	if !needed {
		return tok, nil
	}
	return m.Refresh(ctx, tok)
}

// Refresh renews the access token that the caller observed being rejected.
// If that token has already been replaced, the current one is returned
// without contacting the backend. Concurrent calls share a single request.
func (m *Manager) Refresh(ctx context.Context, observed string) (string, error) {
	m.mu.Lock()
	if m.entry {
		err := m.entryErr()
		m.mu.Unlock()
		return "", err
	}
	if observed != "" && m.session.Access != observed && !m.stale {
		tok := m.session.Access
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	// The flight outlives any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh(flightCtx, observed)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) refresh(ctx context.Context, observed string) (string, error) {
	m.mu.Lock()
	if m.entry {
		m.mu.Unlock()
		return "", ErrUnauthenticated
	}
	if observed != "" && m.session.Access != observed && !m.stale {
		// A flight that finished just before this one started already renewed it.
		tok := m.session.Access
		m.mu.Unlock()
		return tok, nil
	}
	user := m.session.Username
	refreshToken := m.session.Refresh
	m.mu.Unlock()

	if refreshToken == "" {
		cause := errors.New("no refresh token")
		m.terminate(ctx, cause)
		return "", fmt.Errorf("%w: %w", ErrSessionTerminated, cause)
	}

	toks, err := m.transport.Refresh(ctx, refreshToken)
	if err != nil {
		m.terminate(ctx, err)
		return "", fmt.Errorf("%w: %w", ErrSessionTerminated, err)
	}

	m.mu.Lock()
	if m.entry {
		// Logged out while the request was in flight.
		m.mu.Unlock()
		return "", ErrUnauthenticated
	}
	m.session.Access = toks.Access
	if toks.Refresh != "" {
		m.session.Refresh = toks.Refresh
	}
	m.stale = false
	s := m.session
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, s); err != nil {
		slog.Warn("failed to persist refreshed session", "user", user, "error", err)
	}

	slog.Info("access token refreshed", "user", user)
	return toks.Access, nil
}

// entryErr explains why there is no session. Callers hold m.mu.
func (m *Manager) entryErr() error {
	if m.closed {
		return ErrSessionTerminated
	}
	return ErrUnauthenticated
}

// Terminate destroys the session and signals termination.
func (m *Manager) Terminate(ctx context.Context, cause error) {
	m.terminate(ctx, cause)
}

func (m *Manager) terminate(ctx context.Context, cause error) {
	m.mu.Lock()
	if m.entry {
		m.mu.Unlock()
		return
	}
	user := m.session.Username
	m.session = Session{}
	m.stale = false
	m.entry = true
	ch := m.terminated
	m.closed = true
	hooks := append([]func(error){}, m.hooks...)
	m.mu.Unlock()

	close(ch)
	if err := m.store.ClearSession(ctx); err != nil {
		slog.Error("failed to clear persisted session", "user", user, "error", err)
	}
	slog.Warn("session terminated", "user", user, "error", cause)

	for _, fn := range hooks {
		fn(cause)
	}
}
