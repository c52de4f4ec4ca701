// Package apitest runs an in-memory inventory backend for tests. It speaks the
// same REST contract as the production backend: JWT token pair, enveloped
// responses, advisory item locks answered with 200 or 423.
package apitest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/model"
)

// Password is the password of every seeded user.
const Password = "password"

type lockEntry struct {
	user string
	at   time.Time
}

// Server is a fake inventory backend.
type Server struct {
	*httptest.Server
	Secret string

	mu            sync.Mutex
	users         map[string]*model.User
	items         map[int64]*model.Item
	locks         map[int64]lockEntry
	nextID        int64
	nextHistory   int64
	accessTTL     time.Duration
	issued        []string
	revokedJTIs   map[string]bool
	rejectRefresh bool
	rejectAll     bool
	calls         map[string]int
	failures      map[string][]int
}

// New starts a backend seeded with the users alice and bob (role user) and
// admin (role admin), all with Password.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		Secret:      "apitest-secret",
		users:       make(map[string]*model.User),
		items:       make(map[int64]*model.Item),
		locks:       make(map[int64]lockEntry),
		accessTTL:   auth.AccessExpiry,
		revokedJTIs: make(map[string]bool),
		calls:       make(map[string]int),
		failures:    make(map[string][]int),
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	for i, u := range []struct{ name, role string }{
		{"admin", model.RoleAdmin},
		{"alice", model.RoleUser},
		{"bob", model.RoleUser},
	} {
		s.users[u.name] = &model.User{ID: int64(i + 1), Username: u.name, PasswordHash: string(hash), Role: u.role}
	}

	s.Server = httptest.NewServer(s.loggingMiddleware(s.routes()))
	t.Cleanup(s.Server.Close)
	return s
}

// APIURL returns the root of the REST API.
func (s *Server) APIURL() string {
	return s.Server.URL + "/api/"
}

// Session logs username in over HTTP and returns its session manager.
func (s *Server) Session(t *testing.T, username string, opts ...auth.Option) *auth.Manager {
	t.Helper()
	m := auth.NewManager(auth.NewHTTPTransport(s.APIURL(), 5*time.Second), opts...)
	if err := m.Login(context.Background(), username, Password); err != nil {
		t.Fatalf("logging in as %s: %v", username, err)
	}
	return m
}

// AddItem stores a copy of item, assigning an id if it has none.
func (s *Server) AddItem(item model.Item) model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextID++
		item.ID = s.nextID
	} else if item.ID > s.nextID {
		s.nextID = item.ID
	}
	if item.Status == "" {
		item.Status = model.StatusAvailable
	}
	if item.Qty == 0 {
		item.Qty = 1
	}
	stored := item
	s.items[item.ID] = &stored
	return stored
}

// Item returns the server's copy of an item.
func (s *Server) Item(id int64) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return model.Item{}, false
	}
	return s.view(it), true
}

// LockAs makes user the lock holder of an item.
func (s *Server) LockAs(id int64, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[id] = lockEntry{user: user, at: time.Now().UTC().Truncate(time.Second)}
}

// LockHolder returns the current holder of an item lock.
func (s *Server) LockHolder(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[id].user
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, jti := range s.issued {
		s.revokedJTIs[jti] = true
	}
	s.issued = nil
}

// SetAccessTTL sets the lifetime of access tokens issued from now on.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// RejectRefresh makes POST token/refresh/ answer 401.
func (s *Server) RejectRefresh(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRefresh = reject
}

// RejectAll makes every authenticated endpoint answer 401.
func (s *Server) RejectAll(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = reject
}

// FailNext makes the next request matching key ("POST items/6/unlock/")
// answer with status.
func (s *Server) FailNext(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.failures[key], status)
}

// Calls returns how many requests matched key, e.g. "POST token/refresh/".
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// AccessToken issues an access token for user directly.
func (s *Server) AccessToken(t *testing.T, username string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		t.Fatalf("unknown user %q", username)
	}
	tok, err := s.issueLocked(u, auth.KindAccess, s.accessTTL)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return tok
}

func (s *Server) count(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
}

func (s *Server) takeFailure(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.failures[key]
	if len(queue) == 0 {
		return 0, false
	}
	s.failures[key] = queue[1:]
	return queue[0], true
}

func (s *Server) revoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokedJTIs[jti]
}

func (s *Server) rejectingAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejectAll
}

// issueLocked signs a token for u. Callers hold s.mu.
func (s *Server) issueLocked(u *model.User, kind string, ttl time.Duration) (string, error) {
	tok, err := auth.GenerateToken(s.Secret, u.ID, u.Username, u.Role, kind, ttl)
	if err != nil {
		return "", err
	}
	if kind == auth.KindAccess {
		claims, err := auth.InspectToken(tok)
		if err != nil {
			return "", err
		}
		s.issued = append(s.issued, claims.ID)
	}
	return tok, nil
}

// view returns the wire form of an item with its lock overlay. Callers hold s.mu.
func (s *Server) view(it *model.Item) model.Item {
	out := *it
	out.History = append([]model.HistoryEntry(nil), it.History...)
	if l, ok := s.locks[it.ID]; ok {
		out.LockedBy = model.Holder(l.user)
		at := l.at
		out.LockedAt = &at
	} else {
		out.LockedBy = ""
		out.LockedAt = nil
	}
	return out
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.Handler { return s.authMiddleware(h) }
	requireAdmin := requireRole(model.RoleAdmin)

	// Public: token pair.
	mux.HandleFunc("POST /api/token/{$}", s.handleLogin)
	mux.HandleFunc("POST /api/token/refresh/{$}", s.handleRefresh)

	// Items.
	mux.Handle("GET /api/items/{$}", authed(s.handleListItems))
	mux.Handle("GET /api/items", authed(s.handleListItems))
	mux.Handle("POST /api/items/{$}", authed(s.handleCreateItem))
	mux.Handle("POST /api/items", authed(s.handleCreateItem))
	mux.Handle("PUT /api/items/{id}/{$}", authed(s.handleUpdateItem))
	mux.Handle("PATCH /api/items/{id}/{$}", authed(s.handleUpdateItem))

	// Locks.
	mux.Handle("POST /api/items/{id}/lock/{$}", authed(s.handleLock))
	mux.Handle("POST /api/items/{id}/unlock/{$}", authed(s.handleUnlock))

	// Lifecycle actions.
	mux.Handle("POST /api/items/{id}/confirm-tmc/{$}", authed(s.handleConfirmTMC))
	mux.Handle("POST /api/items/{id}/confirm-repair/{$}", authed(s.handleConfirmRepair))
	mux.Handle("POST /api/items/{id}/return-from-service/{$}", authed(s.handleReturnFromService))
	mux.Handle("POST /api/items/{id}/cancel-write-off/{$}", s.authMiddleware(requireAdmin(http.HandlerFunc(s.handleCancelWriteOff))))

	mux.Handle("GET /api/status-counters/{$}", authed(s.handleStatusCounters))

	return mux
}
