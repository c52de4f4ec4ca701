package wire

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"items", "items/"},
		{"/items", "items/"},
		{"items/", "items/"},
		{"items//", "items/"},
		{"items/6/lock", "items/6/lock/"},
		{"/items/6/confirm-tmc/", "items/6/confirm-tmc/"},
		{"items?search=drill", "items?search=drill"},
		{"/items?search=a/", "items?search=a/"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var out struct {
		LockedBy string `json:"locked_by"`
	}
	body := []byte(`{"success": true, "data": {"status": "locked", "locked_by": "alice"}, "message": "ok"}`)
	if err := Decode(body, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.LockedBy != "alice" {
		t.Errorf("expected locked_by 'alice', got %q", out.LockedBy)
	}
}

func TestDecodeBareBody(t *testing.T) {
	var out struct {
		Access string `json:"access"`
	}
	if err := Decode([]byte(`{"access": "abc"}`), &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Access != "abc" {
		t.Errorf("expected access 'abc', got %q", out.Access)
	}

	var list []int
	if err := Decode([]byte(`[1, 2, 3]`), &list); err != nil {
		t.Fatalf("Decode list: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 elements, got %d", len(list))
	}
}

func TestUnwrapEmptyData(t *testing.T) {
	data, msg, err := Unwrap([]byte(`{"success": true, "data": null, "message": "done"}`))
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil data, got %s", data)
	}
	if msg != "done" {
		t.Errorf("expected message 'done', got %q", msg)
	}
}

func TestUnwrapFailure(t *testing.T) {
	_, msg, err := Unwrap([]byte(`{"success": false, "data": null, "error": "bad"}`))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if msg != "bad" {
		t.Errorf("expected message 'bad', got %q", msg)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"success": false, "error": "ТМЦ не найдено"}`, "ТМЦ не найдено"},
		{`{"detail": "Token is invalid or expired"}`, "Token is invalid or expired"},
		{`{"message": "nope"}`, "nope"},
		{`plain text`, "plain text"},
		{``, ""},
	}

	for _, tt := range tests {
		if got := ErrorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("ErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestErrorMessageTruncatesOnRuneBoundary(t *testing.T) {
	// 150 two-byte runes: byte 200 falls on a rune start, byte 201 would not.
	body := strings.Repeat("ж", 150)
	got := ErrorMessage([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8: %q", got)
	}
	if len(got) > maxMessage {
		t.Errorf("expected at most %d bytes, got %d", maxMessage, len(got))
	}

	// A leading ASCII byte shifts every rune, so byte 200 lands mid-rune.
	got = ErrorMessage([]byte("x" + body))
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8: %q", got)
	}
	if want := "x" + strings.Repeat("ж", 99); got != want {
		t.Errorf("expected %d bytes ending on a whole rune, got %d bytes", len(want), len(got))
	}
}
