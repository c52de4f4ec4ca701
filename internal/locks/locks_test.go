package locks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/erazemk/inventar/internal/apitest"
	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/gateway"
	"github.com/erazemk/inventar/internal/model"
)

func setupCoordinator(t *testing.T, srv *apitest.Server, user string) (*Coordinator, *auth.Manager) {
	t.Helper()
	m := srv.Session(t, user)
	g := gateway.New(srv.APIURL(), m, 5*time.Second)
	return New(g, m.Username), m
}

func TestAcquireAndRelease(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 6, Name: "Перфоратор"})
	c, _ := setupCoordinator(t, srv, "alice")
	ctx := context.Background()

	lock, err := c.Acquire(ctx, 6)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lock.User != "alice" {
		t.Errorf("expected holder alice, got %q", lock.User)
	}
	if got, ok := c.Holder(6); !ok || got.User != "alice" {
		t.Errorf("expected local record for alice, got %+v, %v", got, ok)
	}
	if srv.LockHolder(6) != "alice" {
		t.Errorf("expected server lock for alice, got %q", srv.LockHolder(6))
	}

	if err := c.Release(ctx, 6); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := c.Holder(6); ok {
		t.Error("expected local record to be cleared")
	}
	if srv.LockHolder(6) != "" {
		t.Errorf("expected server lock to be cleared, got %q", srv.LockHolder(6))
	}
}

func TestAcquireConflict(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 6, Name: "Перфоратор"})
	alice, _ := setupCoordinator(t, srv, "alice")
	bob, _ := setupCoordinator(t, srv, "bob")
	ctx := context.Background()

	if _, err := alice.Acquire(ctx, 6); err != nil {
		t.Fatalf("alice Acquire: %v", err)
	}

	_, err := bob.Acquire(ctx, 6)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Holder != "alice" {
		t.Errorf("expected holder alice, got %q", conflict.Holder)
	}
	if conflict.At == nil {
		t.Error("expected lock time in conflict")
	}

	l, ok := bob.Holder(6)
	if !ok || l.User != "alice" {
		t.Errorf("expected bob's record to show alice, got %+v, %v", l, ok)
	}
	if bob.CanEdit(6, "bob") {
		t.Error("expected bob not to be able to edit")
	}
	if !alice.CanEdit(6, "alice") {
		t.Error("expected alice to be able to edit")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 3, Name: "Болгарка"})
	c, _ := setupCoordinator(t, srv, "alice")
	ctx := context.Background()

	if _, err := c.Acquire(ctx, 3); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := c.Release(ctx, 3); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := c.Release(ctx, 3); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if len(c.Snapshot()) != 0 {
		t.Errorf("expected empty lock map, got %v", c.Snapshot())
	}
}

func TestReleaseFailureStillClearsRecord(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 3, Name: "Болгарка"})
	c, _ := setupCoordinator(t, srv, "alice")
	ctx := context.Background()

	if _, err := c.Acquire(ctx, 3); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	srv.FailNext("POST items/3/unlock/", http.StatusInternalServerError)

	if err := c.Release(ctx, 3); err == nil {
		t.Error("expected release error to be reported")
	}
	if _, ok := c.Holder(3); ok {
		t.Error("expected local record to be cleared despite server failure")
	}
}

func TestAcquireAuthFailurePropagates(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 6, Name: "Перфоратор"})
	c, m := setupCoordinator(t, srv, "alice")
	srv.ExpireAccessTokens()
	srv.RejectRefresh(true)

	_, err := c.Acquire(context.Background(), 6)
	if !errors.Is(err, gateway.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		t.Error("auth failure must not be reported as a conflict")
	}
	if _, ok := c.Holder(6); ok {
		t.Error("expected no local record after auth failure")
	}
	if !m.OnEntrySurface() {
		t.Error("expected session to be terminated")
	}
}

func TestWithReleasesOnEveryPath(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 6, Name: "Перфоратор"})
	c, _ := setupCoordinator(t, srv, "alice")
	ctx := context.Background()

	// Success.
	if err := c.With(ctx, 6, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("With: %v", err)
	}

	// Failure.
	boom := errors.New("boom")
	if err := c.With(ctx, 6, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	// Cancellation inside the scope.
	cctx, cancel := context.WithCancel(ctx)
	err := c.With(cctx, 6, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	// Panic.
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		c.With(ctx, 6, func(context.Context) error { panic("boom") })
	}()

	if got := srv.Calls("POST items/6/lock/"); got != 4 {
		t.Errorf("expected 4 lock calls, got %d", got)
	}
	if got := srv.Calls("POST items/6/unlock/"); got != 4 {
		t.Errorf("expected exactly one unlock per scope, got %d", got)
	}
	if srv.LockHolder(6) != "" {
		t.Errorf("expected item to end unlocked, got holder %q", srv.LockHolder(6))
	}
}

func TestWithConflictSkipsBody(t *testing.T) {
	srv := apitest.New(t)
	srv.AddItem(model.Item{ID: 6, Name: "Перфоратор"})
	srv.LockAs(6, "alice")
	c, _ := setupCoordinator(t, srv, "bob")

	ran := false
	err := c.With(context.Background(), 6, func(context.Context) error {
		ran = true
		return nil
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ran {
		t.Error("expected body not to run without the lock")
	}
	if got := srv.Calls("POST items/6/unlock/"); got != 0 {
		t.Errorf("expected no unlock call, got %d", got)
	}
}

func TestObserve(t *testing.T) {
	c := New(nil, func() string { return "alice" })
	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	c.Observe(1, "bob", &at)
	l, ok := c.Holder(1)
	if !ok || l.User != "bob" || !l.Time.Equal(at) {
		t.Errorf("unexpected record: %+v, %v", l, ok)
	}

	c.Observe(1, "", nil)
	if _, ok := c.Holder(1); ok {
		t.Error("expected empty holder to clear the record")
	}
}
