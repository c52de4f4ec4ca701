package lifecycle

import (
	"errors"
	"slices"
	"testing"

	"github.com/erazemk/inventar/internal/model"
)

// expected lists, for every status, exactly the actions that must be legal.
var expected = map[model.Status][]Action{
	model.StatusAvailable:     {Transfer, WriteOff},
	model.StatusIssued:        {IssueToWork, SendToService, WriteOff},
	model.StatusAtWork:        {SendToService, WriteOff},
	model.StatusConfirm:       {Accept, Reject, WriteOff},
	model.StatusConfirmRepair: {ConfirmRepair, WriteOff},
	model.StatusInRepair:      {ReturnFromService, WriteOff},
	model.StatusRetired:       {CancelWriteOff},
}

func TestTransitionTableExhaustive(t *testing.T) {
	if len(expected) != len(model.Statuses) {
		t.Fatalf("expected table covers %d statuses, model has %d", len(expected), len(model.Statuses))
	}

	for _, s := range model.Statuses {
		legal := map[Action]bool{}
		for _, a := range expected[s] {
			legal[a] = true
		}
		for _, a := range All() {
			if got := Allowed(s, a); got != legal[a] {
				t.Errorf("Allowed(%s, %s) = %v, want %v", s, a, got, legal[a])
			}
		}
	}
}

func TestTargets(t *testing.T) {
	tests := []struct {
		action Action
		want   model.Status
		ok     bool
	}{
		{Transfer, model.StatusIssued, true},
		{IssueToWork, model.StatusAtWork, true},
		{SendToService, model.StatusConfirmRepair, true},
		{ConfirmRepair, model.StatusInRepair, true},
		{ReturnFromService, model.StatusConfirm, true},
		{Accept, model.StatusIssued, true},
		{Reject, "", false},
		{WriteOff, model.StatusRetired, true},
		{CancelWriteOff, model.StatusAvailable, true},
	}

	for _, tt := range tests {
		got, ok := Target(tt.action)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Target(%s) = %q, %v, want %q, %v", tt.action, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTargetsAreKnownStatuses(t *testing.T) {
	for a, rule := range Table {
		if rule.To != "" && !rule.To.Valid() {
			t.Errorf("action %s leads to unknown status %q", a, rule.To)
		}
		for _, s := range rule.From {
			if !s.Valid() {
				t.Errorf("action %s starts from unknown status %q", a, s)
			}
		}
	}
}

func TestAvailableHidesAdminActions(t *testing.T) {
	if got := Available(model.StatusRetired, false); len(got) != 0 {
		t.Errorf("expected no actions for retired item as non-admin, got %v", got)
	}
	got := Available(model.StatusRetired, true)
	if len(got) != 1 || got[0] != CancelWriteOff {
		t.Errorf("expected [cancel-write-off] for admin, got %v", got)
	}
}

func TestValidateIllegalAction(t *testing.T) {
	item := &model.Item{ID: 6, Status: model.StatusAvailable}

	err := Validate(item, Accept, Params{}, false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Status != model.StatusAvailable || ve.Action != Accept {
		t.Errorf("unexpected validation error: %+v", ve)
	}
}

func TestValidateRequiredParams(t *testing.T) {
	brigade := int64(2)
	tests := []struct {
		name    string
		status  model.Status
		action  Action
		params  Params
		wantErr bool
	}{
		{"transfer without responsible", model.StatusAvailable, Transfer, Params{Location: "Склад"}, true},
		{"transfer", model.StatusAvailable, Transfer, Params{Responsible: "Иванов"}, false},
		{"issue without brigade", model.StatusIssued, IssueToWork, Params{}, true},
		{"issue", model.StatusIssued, IssueToWork, Params{Brigade: &brigade}, false},
		{"repair without invoice", model.StatusConfirmRepair, ConfirmRepair, Params{Location: "Сервис"}, true},
		{"repair without location", model.StatusConfirmRepair, ConfirmRepair, Params{InvoiceNumber: "42"}, true},
		{"repair", model.StatusConfirmRepair, ConfirmRepair, Params{InvoiceNumber: "42", Location: "Сервис"}, false},
		{"write-off without reason", model.StatusIssued, WriteOff, Params{Reason: "  "}, true},
		{"write-off", model.StatusIssued, WriteOff, Params{Reason: "сломано"}, false},
		{"return without comment", model.StatusInRepair, ReturnFromService, Params{}, false},
		{"unknown action", model.StatusIssued, Action("teleport"), Params{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&model.Item{ID: 1, Status: tt.status}, tt.action, tt.params, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range All() {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseAction("fly"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestValidateAgreesWithAvailable(t *testing.T) {
	brigade := int64(3)
	full := Params{
		Responsible:   "Иванов",
		Location:      "Склад",
		Brigade:       &brigade,
		InvoiceNumber: "42",
		Reason:        "сломано",
	}

	for _, admin := range []bool{false, true} {
		for _, s := range model.Statuses {
			offered := Available(s, admin)
			for _, a := range All() {
				err := Validate(&model.Item{ID: 1, Status: s}, a, full, admin)
				if want := slices.Contains(offered, a); (err == nil) != want {
					t.Errorf("admin=%v status=%s action=%s: Validate error = %v, offered %v", admin, s, a, err, want)
				}
			}
		}
	}
}

func TestValidateAdminOnly(t *testing.T) {
	item := &model.Item{ID: 4, Status: model.StatusRetired}

	err := Validate(item, CancelWriteOff, Params{}, false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Reason != "admin only" {
		t.Errorf("expected admin only reason, got %q", ve.Reason)
	}

	if err := Validate(item, CancelWriteOff, Params{}, true); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}
