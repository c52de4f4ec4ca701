package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erazemk/inventar/internal/model"
)

// ReplaceItems replaces the item snapshot with items.
func ReplaceItems(ctx context.Context, db *sql.DB, items []model.Item, syncedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, name, status, data, synced_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encoding item %d: %w", it.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, it.ID, it.Name, string(it.Status), string(data), syncedAt.UTC()); err != nil {
			return fmt.Errorf("storing item %d: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing items: %w", err)
	}
	return nil
}

// GetItem returns a stored item by ID.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM items WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	item := &model.Item{}
	if err := json.Unmarshal([]byte(data), item); err != nil {
		return nil, fmt.Errorf("decoding item %d: %w", id, err)
	}
	return item, nil
}

// ListItems returns the stored items ordered by ID, optionally filtered by
// status, and the time of the sync that produced them.
func ListItems(ctx context.Context, db *sql.DB, status model.Status) ([]model.Item, time.Time, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = db.QueryContext(ctx,
			`SELECT id, data, synced_at FROM items WHERE status = ? ORDER BY id`, string(status),
		)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT id, data, synced_at FROM items ORDER BY id`,
		)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var (
		items    []model.Item
		syncedAt time.Time
	)
	for rows.Next() {
		var (
			id   int64
			data string
			at   time.Time
		)
		if err := rows.Scan(&id, &data, &at); err != nil {
			return nil, time.Time{}, fmt.Errorf("scanning item: %w", err)
		}
		var item model.Item
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, time.Time{}, fmt.Errorf("decoding item %d: %w", id, err)
		}
		items = append(items, item)
		if at.After(syncedAt) {
			syncedAt = at
		}
	}
	return items, syncedAt, rows.Err()
}
