package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/inventar/internal/catalog"
	"github.com/erazemk/inventar/internal/client"
	"github.com/erazemk/inventar/internal/gateway"
	"github.com/erazemk/inventar/internal/lifecycle"
	"github.com/erazemk/inventar/internal/locks"
	"github.com/erazemk/inventar/internal/model"
)

// ErrUnknownItem is returned for an item missing from the catalog.
var ErrUnknownItem = errors.New("item not in catalog")

// Identity describes the operator performing actions.
type Identity interface {
	Username() string
}

type dispatchFunc func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error)

// dispatch maps each lifecycle action to the backend call that performs it.
var dispatch = map[lifecycle.Action]dispatchFunc{
	lifecycle.Transfer: func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error) {
		return c.Transfer(ctx, id, p.Responsible, p.Location)
	},
	lifecycle.IssueToWork: func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error) {
		return c.IssueToWork(ctx, id, *p.Brigade)
	},
	lifecycle.SendToService: func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error) {
		return c.SendToService(ctx, id, p.Comment)
	},
	lifecycle.ConfirmRepair: func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error) {
		return c.ConfirmRepair(ctx, id, p.InvoiceNumber, p.Location)
	},
	lifecycle.ReturnFromService: func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error) {
		return c.ReturnFromService(ctx, id, p.Comment)
	},
	lifecycle.Accept: func(ctx context.Context, c *client.Client, id int64, _ lifecycle.Params) (*model.Item, error) {
		return c.ConfirmTMC(ctx, id, true)
	},
	lifecycle.Reject: func(ctx context.Context, c *client.Client, id int64, _ lifecycle.Params) (*model.Item, error) {
		return c.ConfirmTMC(ctx, id, false)
	},
	lifecycle.WriteOff: func(ctx context.Context, c *client.Client, id int64, p lifecycle.Params) (*model.Item, error) {
		return c.WriteOff(ctx, id, p.Reason)
	},
	lifecycle.CancelWriteOff: func(ctx context.Context, c *client.Client, id int64, _ lifecycle.Params) (*model.Item, error) {
		return c.CancelWriteOff(ctx, id)
	},
}

// Runner performs item actions: it validates locally, holds the item lock
// for the duration of the backend call and applies the confirmed result to
// the catalog.
type Runner struct {
	api   *client.Client
	locks *locks.Coordinator
	cache *catalog.Cache
	who   Identity
	admin bool
}

// New creates a runner. admin enables admin-only actions in Actions and Run.
func New(api *client.Client, lc *locks.Coordinator, cache *catalog.Cache, who Identity, admin bool) *Runner {
	return &Runner{api: api, locks: lc, cache: cache, who: who, admin: admin}
}

// Actions returns the actions offered for a cached item.
func (r *Runner) Actions(id int64) ([]lifecycle.Action, error) {
	item, ok := r.cache.Item(id)
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, ErrUnknownItem)
	}
	return lifecycle.Available(item.Status, r.admin), nil
}

// Run performs action a on item id. An illegal action or missing input is
// rejected with a *lifecycle.ValidationError before anything is sent. A lock
// held by someone else yields a *locks.ConflictError and no mutation.
func (r *Runner) Run(ctx context.Context, id int64, a lifecycle.Action, p lifecycle.Params) (model.Item, error) {
	item, ok := r.cache.Item(id)
	if !ok {
		return model.Item{}, fmt.Errorf("item %d: %w", id, ErrUnknownItem)
	}
	if err := lifecycle.Validate(&item, a, p, r.admin); err != nil {
		return model.Item{}, err
	}
	call, ok := dispatch[a]
	if !ok {
		return model.Item{}, fmt.Errorf("no backend call for action %s", a)
	}

	var result *model.Item
	err := r.mutate(ctx, id, func(ctx context.Context) error {
		var err error
		result, err = call(ctx, r.api, id, p)
		return err
	})
	if err != nil {
		slog.Warn("item action failed", "item", id, "action", a, "error", err)
		return model.Item{}, fmt.Errorf("%s item %d: %w", a, id, err)
	}

	updated, err := r.settle(ctx, id, result)
	if err != nil {
		return model.Item{}, err
	}
	slog.Info("item action done", "item", id, "action", a, "status", updated.Status, "user", r.who.Username())
	return updated, nil
}

// Create adds a new item to the catalog.
func (r *Runner) Create(ctx context.Context, in client.NewItem) (model.Item, error) {
	item, err := r.api.CreateItem(ctx, in)
	if err != nil {
		return model.Item{}, err
	}
	if item == nil {
		return model.Item{}, fmt.Errorf("creating item: backend returned no item")
	}
	r.cache.Apply(*item)
	slog.Info("item created", "item", item.ID, "name", item.Name)
	return *item, nil
}

// Edit changes item fields under the item lock. Status changes go through
// Run.
func (r *Runner) Edit(ctx context.Context, id int64, u client.Update) (model.Item, error) {
	item, ok := r.cache.Item(id)
	if !ok {
		return model.Item{}, fmt.Errorf("item %d: %w", id, ErrUnknownItem)
	}
	if u.Status != nil {
		return model.Item{}, fmt.Errorf("editing item %d: status changes must use an action", id)
	}
	if item.Status == model.StatusRetired {
		return model.Item{}, &lifecycle.ValidationError{ItemID: id, Status: item.Status, Action: "edit", Reason: "item is written off"}
	}

	var result *model.Item
	err := r.mutate(ctx, id, func(ctx context.Context) error {
		var err error
		result, err = r.api.UpdateItem(ctx, id, http.MethodPatch, u)
		return err
	})
	if err != nil {
		return model.Item{}, fmt.Errorf("editing item %d: %w", id, err)
	}
	return r.settle(ctx, id, result)
}

// mutate runs fn while holding the item lock. A 423 from the mutation itself
// means the lock was lost to someone else and is reported as a conflict.
func (r *Runner) mutate(ctx context.Context, id int64, fn func(context.Context) error) error {
	err := r.locks.With(ctx, id, fn)
	var locked *gateway.LockedError
	if errors.As(err, &locked) {
		return &locks.ConflictError{ItemID: id, Holder: locked.LockedBy, At: locked.LockedAt}
	}
	return err
}

// settle applies the backend's answer to the catalog. When the backend did
// not return the item, the catalog is re-synced to learn its new state.
func (r *Runner) settle(ctx context.Context, id int64, result *model.Item) (model.Item, error) {
	if result == nil {
		if err := r.cache.Sync(ctx); err != nil {
			return model.Item{}, fmt.Errorf("refreshing item %d: %w", id, err)
		}
		item, ok := r.cache.Item(id)
		if !ok {
			return model.Item{}, fmt.Errorf("item %d: %w", id, ErrUnknownItem)
		}
		return item, nil
	}

	// The response was produced while we still held the lock.
	if string(result.LockedBy) == r.who.Username() {
		result.LockedBy = ""
		result.LockedAt = nil
	}
	r.cache.Apply(*result)
	return *result, nil
}
