package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/inventar/internal/model"
)

// Source fetches the authoritative catalog. *client.Client implements it.
type Source interface {
	ListItems(ctx context.Context, search string) ([]model.Item, error)
	StatusCounters(ctx context.Context) (model.StatusCounters, error)
}

// LockView is the lock record the overlay is drawn from.
// *locks.Coordinator implements it.
type LockView interface {
	Snapshot() map[int64]model.Lock
	Observe(id int64, holder string, at *time.Time)
}

// Snapshotter persists the last known catalog between runs.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, items []model.Item, at time.Time) error
	LoadSnapshot(ctx context.Context) ([]model.Item, time.Time, error)
}

// Row is one line of the overlay view: an item with its lock state.
type Row struct {
	model.Item
	Holder string
	Since  *time.Time
	Mine   bool
}

// Cache holds the operator's view of the catalog. Items only change through
// Sync or Apply, i.e. after the backend confirmed them.
type Cache struct {
	src   Source
	locks LockView
	snap  Snapshotter

	mu       sync.RWMutex
	items    []model.Item
	counters model.StatusCounters
	syncedAt time.Time
	stale    bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLocks draws the lock overlay from l and feeds it the lock hints
// reported in item listings.
func WithLocks(l LockView) Option {
	return func(c *Cache) { c.locks = l }
}

// WithSnapshots persists every successful sync to s.
func WithSnapshots(s Snapshotter) Option {
	return func(c *Cache) { c.snap = s }
}

// New creates an empty cache.
func New(src Source, opts ...Option) *Cache {
	c := &Cache{src: src}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync replaces the cached catalog with the backend's. The item list and the
// counters are fetched concurrently. On failure the cache is left untouched.
func (c *Cache) Sync(ctx context.Context) error {
	var (
		items    []model.Item
		counters model.StatusCounters
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = c.src.ListItems(gctx, "")
		return err
	})
	g.Go(func() error {
		var err error
		counters, err = c.src.StatusCounters(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("syncing catalog: %w", err)
	}

	slices.SortFunc(items, func(a, b model.Item) int { return compareID(a.ID, b.ID) })
	now := time.Now()

	c.mu.Lock()
	c.items = items
	c.counters = counters
	c.syncedAt = now
	c.stale = false
	c.mu.Unlock()

	if c.locks != nil {
		for _, it := range items {
			c.locks.Observe(it.ID, string(it.LockedBy), it.LockedAt)
		}
	}

	if c.snap != nil {
		if err := c.snap.SaveSnapshot(ctx, items, now); err != nil {
			slog.Warn("failed to save catalog snapshot", "error", err)
		}
	}

	slog.Info("catalog synced", "items", len(items))
	return nil
}

// LoadSnapshot fills an empty cache from the persisted snapshot. The loaded
// catalog is marked stale until the next Sync.
func (c *Cache) LoadSnapshot(ctx context.Context) (bool, error) {
	if c.snap == nil {
		return false, nil
	}
	items, at, err := c.snap.LoadSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("loading catalog snapshot: %w", err)
	}
	if len(items) == 0 {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.syncedAt.IsZero() && !c.stale {
		return false, nil
	}
	c.items = items
	c.counters = model.CountStatuses(items)
	c.syncedAt = at
	c.stale = true
	return true, nil
}

// Apply stores a server-confirmed item, replacing the cached copy.
func (c *Cache) Apply(item model.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, found := slices.BinarySearchFunc(c.items, item.ID, func(it model.Item, id int64) int { return compareID(it.ID, id) })
	if found {
		c.items[i] = item
	} else {
		c.items = slices.Insert(c.items, i, item)
	}
	c.counters = model.CountStatuses(c.items)
}

// Items returns a copy of the cached catalog ordered by id.
func (c *Cache) Items() []model.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Item returns the cached copy of an item.
func (c *Cache) Item(id int64) (model.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, found := slices.BinarySearchFunc(c.items, id, func(it model.Item, id int64) int { return compareID(it.ID, id) })
	if !found {
		return model.Item{}, false
	}
	return c.items[i], true
}

// Search filters the cached catalog by name, brand, serial, location or
// responsible person.
func (c *Cache) Search(query string) []model.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Item
	for _, it := range c.items {
		if q == "" || matches(it, q) {
			out = append(out, it)
		}
	}
	return out
}

func matches(it model.Item, q string) bool {
	for _, field := range []string{it.Name, it.Brand, it.SerialNumber(), it.Location, it.Responsible} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Filter returns the cached items in one of the given statuses.
func (c *Cache) Filter(statuses ...model.Status) []model.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Item
	for _, it := range c.items {
		if slices.Contains(statuses, it.Status) {
			out = append(out, it)
		}
	}
	return out
}

// View returns every cached item with its lock state as seen by self.
func (c *Cache) View(self string) []Row {
	items := c.Items()
	var held map[int64]model.Lock
	if c.locks != nil {
		held = c.locks.Snapshot()
	}

	rows := make([]Row, 0, len(items))
	for _, it := range items {
		row := Row{Item: it}
		if l, ok := held[it.ID]; ok {
			row.Holder = l.User
			t := l.Time
			row.Since = &t
		} else if c.locks == nil && it.LockedBy != "" {
			row.Holder = string(it.LockedBy)
			row.Since = it.LockedAt
		}
		row.Mine = row.Holder != "" && row.Holder == self
		rows = append(rows, row)
	}
	return rows
}

// Counters returns the status counters of the cached catalog.
func (c *Cache) Counters() model.StatusCounters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters
}

// Stale reports whether the cached catalog came from a snapshot rather than
// a sync, and when it was last synced.
func (c *Cache) Stale() (bool, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale, c.syncedAt
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
