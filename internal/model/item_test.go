package model

import (
	"encoding/json"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"available", StatusAvailable, false},
		{"issued", StatusIssued, false},
		{"at_work", StatusAtWork, false},
		{"confirm", StatusConfirm, false},
		{"confirm_repair", StatusConfirmRepair, false},
		{"in_repair", StatusInRepair, false},
		{"retired", StatusRetired, false},
		{"written_off", StatusRetired, false},
		{"created", "", true},
		{"", "", true},
		{"ISSUED", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestItemDecode(t *testing.T) {
	data := `{
		"id": 6,
		"name": "Перфоратор",
		"serial": null,
		"brand": "Makita",
		"status": "confirm",
		"responsible": null,
		"location": "Склад 1",
		"qty": 1,
		"brigade_details": {"id": 2, "name": "Бригада 2", "brigadier": "Иванов", "responsible": "Петров"},
		"history": [{"id": 1, "date": "01.02.24 10:30", "action": "Создано", "action_type": "created", "user": 3, "user_username": "alice"}],
		"locked_by": 3,
		"locked_at": "2024-02-01T10:31:00Z"
	}`

	var item Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if item.Status != StatusConfirm {
		t.Errorf("expected status confirm, got %q", item.Status)
	}
	if item.Serial != nil {
		t.Errorf("expected nil serial, got %q", *item.Serial)
	}
	if item.Responsible != "" {
		t.Errorf("expected empty responsible, got %q", item.Responsible)
	}
	if item.BrigadeDetails == nil || item.BrigadeDetails.Name != "Бригада 2" {
		t.Errorf("expected brigade details, got %+v", item.BrigadeDetails)
	}
	if len(item.History) != 1 || item.History[0].UserUsername != "alice" {
		t.Errorf("expected one history entry by alice, got %+v", item.History)
	}
	if item.LockedBy != "3" {
		t.Errorf("expected holder '3', got %q", item.LockedBy)
	}
	if !item.Locked() {
		t.Error("expected item to be locked")
	}
}

func TestItemDecodeRejectsUnknownStatus(t *testing.T) {
	var item Item
	if err := json.Unmarshal([]byte(`{"id": 1, "name": "x", "status": "lost"}`), &item); err == nil {
		t.Error("expected error for unknown status")
	}
	if err := json.Unmarshal([]byte(`{"id": 1, "name": "x"}`), &item); err == nil {
		t.Error("expected error for missing status")
	}
}

func TestHolderDecode(t *testing.T) {
	tests := []struct {
		in   string
		want Holder
	}{
		{`"alice"`, "alice"},
		{`7`, "7"},
		{`null`, ""},
		{`{"id": 4, "username": "bob"}`, "bob"},
	}

	for _, tt := range tests {
		var h Holder
		if err := json.Unmarshal([]byte(tt.in), &h); err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.in, err)
			continue
		}
		if h != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, h, tt.want)
		}
	}
}

func TestCountStatuses(t *testing.T) {
	items := []Item{
		{ID: 1, Status: StatusConfirm},
		{ID: 2, Status: StatusConfirm},
		{ID: 3, Status: StatusConfirmRepair},
		{ID: 4, Status: StatusIssued},
		{ID: 5, Status: StatusAtWork},
		{ID: 6, Status: StatusAvailable},
		{ID: 7, Status: StatusRetired},
	}

	got := CountStatuses(items)
	want := StatusCounters{ToReceive: 2, ToRepair: 1, Issued: 2}
	if got != want {
		t.Errorf("CountStatuses = %+v, want %+v", got, want)
	}
}
