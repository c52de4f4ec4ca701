package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
)

func TestSessionRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	s, err := LoadSession(ctx, database)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no session, got %+v", s)
	}

	if err := SaveSession(ctx, database, auth.Session{Username: "alice", Access: "a1", Refresh: "r1"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := SaveSession(ctx, database, auth.Session{Username: "alice", Access: "a2", Refresh: "r2"}); err != nil {
		t.Fatalf("second SaveSession: %v", err)
	}

	s, err = LoadSession(ctx, database)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if s == nil || s.Access != "a2" || s.Refresh != "r2" {
		t.Errorf("expected latest token pair, got %+v", s)
	}

	if err := ClearSession(ctx, database); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if s, _ := LoadSession(ctx, database); s != nil {
		t.Errorf("expected session to be cleared, got %+v", s)
	}
}

func TestReplaceAndListItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	serial := "SN-9"
	lockedAt := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	syncedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	items := []model.Item{
		{ID: 2, Name: "Болгарка", Status: model.StatusIssued, Responsible: "Иванов", Qty: 1},
		{ID: 1, Name: "Перфоратор", Serial: &serial, Status: model.StatusAvailable, Qty: 1, LockedBy: "bob", LockedAt: &lockedAt},
	}
	if err := ReplaceItems(ctx, database, items, syncedAt); err != nil {
		t.Fatalf("ReplaceItems: %v", err)
	}

	got, at, err := ListItems(ctx, database, "")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("expected items 1 and 2 in order, got %+v", got)
	}
	if !at.Equal(syncedAt) {
		t.Errorf("expected synced at %v, got %v", syncedAt, at)
	}
	if got[0].SerialNumber() != "SN-9" || got[0].LockedBy != "bob" {
		t.Errorf("expected serial and holder to survive, got %+v", got[0])
	}

	issued, _, err := ListItems(ctx, database, model.StatusIssued)
	if err != nil {
		t.Fatalf("ListItems by status: %v", err)
	}
	if len(issued) != 1 || issued[0].Responsible != "Иванов" {
		t.Errorf("expected one issued item, got %+v", issued)
	}

	// A new snapshot replaces the old one entirely.
	if err := ReplaceItems(ctx, database, items[:1], syncedAt.Add(time.Hour)); err != nil {
		t.Fatalf("second ReplaceItems: %v", err)
	}
	if it, err := GetItem(ctx, database, 1); err != nil || it != nil {
		t.Errorf("expected item 1 to be gone, got %+v, %v", it, err)
	}
	it, err := GetItem(ctx, database, 2)
	if err != nil || it == nil || it.Name != "Болгарка" {
		t.Errorf("expected item 2, got %+v, %v", it, err)
	}
}

func TestSettings(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	v, err := GetSetting(ctx, database, SettingLastUsername)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty setting, got %q", v)
	}

	SetSetting(ctx, database, SettingLastUsername, "alice")
	SetSetting(ctx, database, SettingLastUsername, "bob")
	if v, _ := GetSetting(ctx, database, SettingLastUsername); v != "bob" {
		t.Errorf("expected bob, got %q", v)
	}
}

func TestStoreServesSessionManager(t *testing.T) {
	s := New(db.NewTestDB(t))
	ctx := context.Background()

	var _ auth.TokenStore = s
	if err := s.SaveSession(ctx, auth.Session{Username: "bob", Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := s.LoadSession(ctx)
	if err != nil || got == nil || got.Username != "bob" {
		t.Errorf("expected bob's session, got %+v, %v", got, err)
	}

	if err := s.SaveSnapshot(ctx, []model.Item{{ID: 5, Name: "x", Status: model.StatusRetired}}, time.Now()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	items, _, err := s.LoadSnapshot(ctx)
	if err != nil || len(items) != 1 || items[0].Status != model.StatusRetired {
		t.Errorf("expected retired item 5, got %+v, %v", items, err)
	}
}
