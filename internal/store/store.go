// Package store persists the session and the last synced catalog in the local
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/model"
)

// Store binds the package functions to a database. It serves as the session
// store of an auth.Manager and the snapshot store of a catalog.Cache.
type Store struct {
	db *sql.DB
}

// New wraps db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) LoadSession(ctx context.Context) (*auth.Session, error) {
	return LoadSession(ctx, s.db)
}

func (s *Store) SaveSession(ctx context.Context, sess auth.Session) error {
	return SaveSession(ctx, s.db, sess)
}

func (s *Store) ClearSession(ctx context.Context) error {
	return ClearSession(ctx, s.db)
}

func (s *Store) SaveSnapshot(ctx context.Context, items []model.Item, at time.Time) error {
	return ReplaceItems(ctx, s.db, items, at)
}

func (s *Store) LoadSnapshot(ctx context.Context) ([]model.Item, time.Time, error) {
	return ListItems(ctx, s.db, "")
}
