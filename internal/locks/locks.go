package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/erazemk/inventar/internal/gateway"
	"github.com/erazemk/inventar/internal/model"
)

// releaseTimeout bounds the unlock call made when a scoped lock ends.
const releaseTimeout = 10 * time.Second

// Doer sends API requests. *gateway.Gateway implements it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// ConflictError reports that another user holds the item lock. It means the
// action cannot proceed right now, not that anything broke.
type ConflictError struct {
	ItemID int64
	Holder string
	At     *time.Time
}

func (e *ConflictError) Error() string {
	holder := e.Holder
	if holder == "" {
		holder = "another user"
	}
	if e.At != nil {
		return fmt.Sprintf("item %d is locked by %s since %s", e.ItemID, holder, e.At.Local().Format("02.01.06 15:04"))
	}
	return fmt.Sprintf("item %d is locked by %s", e.ItemID, holder)
}

// Coordinator acquires and releases advisory item locks and remembers who
// holds which item. The local record is a cache of the backend's view.
type Coordinator struct {
	api  Doer
	self func() string
	now  func() time.Time

	mu   sync.Mutex
	held map[int64]model.Lock
}

// New creates a coordinator. self returns the identity of the current user.
func New(api Doer, self func() string) *Coordinator {
	return &Coordinator{
		api:  api,
		self: self,
		now:  time.Now,
		held: make(map[int64]model.Lock),
	}
}

// Acquire locks an item for the current user. A 423 answer records the
// reported holder and returns a *ConflictError. Any other failure, including
// an authentication failure, is returned as-is and leaves the record alone.
func (c *Coordinator) Acquire(ctx context.Context, id int64) (model.Lock, error) {
	resp, err := c.api.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("items/%d/lock/", id),
	})
	if err != nil {
		var locked *gateway.LockedError
		if errors.As(err, &locked) {
			at := c.now()
			if locked.LockedAt != nil {
				at = *locked.LockedAt
			}
			c.record(model.Lock{ItemID: id, User: locked.LockedBy, Time: at})
			slog.Info("item lock held by another user", "item", id, "holder", locked.LockedBy)
			return model.Lock{}, &ConflictError{ItemID: id, Holder: locked.LockedBy, At: locked.LockedAt}
		}
		return model.Lock{}, fmt.Errorf("locking item %d: %w", id, err)
	}

	var body struct {
		LockedBy model.Holder `json:"locked_by"`
	}
	if err := resp.Decode(&body); err != nil {
		slog.Warn("unexpected lock response", "item", id, "error", err)
	}
	user := c.self()
	if body.LockedBy != "" {
		user = string(body.LockedBy)
	}

	lock := model.Lock{ItemID: id, User: user, Time: c.now()}
	c.record(lock)
	slog.Info("item locked", "item", id, "user", user)
	return lock, nil
}

// Release unlocks an item. The local record is always cleared. Releasing is
// best-effort: a backend failure is logged and returned for information only.
func (c *Coordinator) Release(ctx context.Context, id int64) error {
	c.Forget(id)

	_, err := c.api.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("items/%d/unlock/", id),
	})
	if err != nil {
		slog.Warn("failed to release item lock", "item", id, "error", err)
		return fmt.Errorf("unlocking item %d: %w", id, err)
	}
	slog.Info("item unlocked", "item", id, "user", c.self())
	return nil
}

// With holds the item lock while fn runs. The lock is released exactly once
// on every exit path, including a panic in fn and cancellation of ctx.
func (c *Coordinator) With(ctx context.Context, id int64, fn func(context.Context) error) error {
	if _, err := c.Acquire(ctx, id); err != nil {
		return err
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_ = c.Release(relCtx, id)
	}()
	return fn(ctx)
}

// Holder returns the recorded lock of an item.
func (c *Coordinator) Holder(id int64) (model.Lock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.held[id]
	return l, ok
}

// CanEdit reports whether user may edit the item according to the record.
func (c *Coordinator) CanEdit(id int64, user string) bool {
	l, ok := c.Holder(id)
	return !ok || l.User == user
}

// Snapshot returns a copy of every recorded lock.
func (c *Coordinator) Snapshot() map[int64]model.Lock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.held)
}

// Observe records the lock state the backend reported for an item outside of
// Acquire, such as in an item listing. An empty holder clears the record.
func (c *Coordinator) Observe(id int64, holder string, at *time.Time) {
	if holder == "" {
		c.Forget(id)
		return
	}
	l := model.Lock{ItemID: id, User: holder, Time: c.now()}
	if at != nil {
		l.Time = *at
	}
	c.record(l)
}

// Forget drops the record of an item lock.
func (c *Coordinator) Forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, id)
}

func (c *Coordinator) record(l model.Lock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held[l.ItemID] = l
}
