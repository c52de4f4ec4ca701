package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/inventar/internal/auth"
)

// SaveSession stores the token pair of the signed-in user, replacing any
// previous session.
func SaveSession(ctx context.Context, db *sql.DB, s auth.Session) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO session (id, username, access_token, refresh_token, updated_at)
		 VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		     username = excluded.username,
		     access_token = excluded.access_token,
		     refresh_token = excluded.refresh_token,
		     updated_at = CURRENT_TIMESTAMP`,
		s.Username, s.Access, s.Refresh,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, or nil if there is none.
func LoadSession(ctx context.Context, db *sql.DB) (*auth.Session, error) {
	s := &auth.Session{}
	err := db.QueryRowContext(ctx,
		`SELECT username, access_token, refresh_token FROM session WHERE id = 1`,
	).Scan(&s.Username, &s.Access, &s.Refresh)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return s, nil
}

// ClearSession forgets the stored session.
func ClearSession(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
