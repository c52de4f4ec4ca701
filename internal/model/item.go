package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle status of an item.
type Status string

// Item statuses.
const (
	StatusAvailable     Status = "available"
	StatusIssued        Status = "issued"
	StatusAtWork        Status = "at_work"
	StatusConfirm       Status = "confirm"
	StatusConfirmRepair Status = "confirm_repair"
	StatusInRepair      Status = "in_repair"
	StatusRetired       Status = "retired"
)

// statusWrittenOff is the backend's legacy name for StatusRetired.
const statusWrittenOff = "written_off"

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusAvailable,
	StatusIssued,
	StatusAtWork,
	StatusConfirm,
	StatusConfirmRepair,
	StatusInRepair,
	StatusRetired,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a wire value into a Status. Unknown values are an error.
func ParseStatus(v string) (Status, error) {
	if v == statusWrittenOff {
		return StatusRetired, nil
	}
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown item status %q", v)
	}
	return s, nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Holder identifies the user holding an item lock. The backend reports it
// either as a username or as a numeric user id.
type Holder string

func (h *Holder) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*h = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*h = Holder(v)
		return nil
	case len(data) > 0 && data[0] == '{':
		var v struct {
			Username string `json:"username"`
			ID       int64  `json:"id"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if v.Username != "" {
			*h = Holder(v.Username)
		} else if v.ID != 0 {
			*h = Holder(strconv.FormatInt(v.ID, 10))
		}
		return nil
	default:
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decoding lock holder: %w", err)
		}
		*h = Holder(strconv.FormatInt(id, 10))
		return nil
	}
}

// Brigade is the crew an item is assigned to while at work.
type Brigade struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Brigadier   string  `json:"brigadier"`
	Responsible string  `json:"responsible"`
	Items       []int64 `json:"items,omitempty"`
}

// Item is a single tracked inventory asset.
type Item struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Serial         *string        `json:"serial"`
	Brand          string         `json:"brand"`
	Status         Status         `json:"status"`
	Responsible    string         `json:"responsible"`
	Location       string         `json:"location"`
	Qty            int            `json:"qty"`
	Brigade        *int64         `json:"brigade,omitempty"`
	BrigadeDetails *Brigade       `json:"brigade_details,omitempty"`
	History        []HistoryEntry `json:"history,omitempty"`
	LockedBy       Holder         `json:"locked_by,omitempty"`
	LockedAt       *time.Time     `json:"locked_at,omitempty"`
}

// UnmarshalJSON rejects items without a known status and tolerates null text fields.
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	var raw struct {
		plain
		Brand       *string `json:"brand"`
		Responsible *string `json:"responsible"`
		Location    *string `json:"location"`
		Status      *Status `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Status == nil {
		return fmt.Errorf("item %d: missing status", raw.ID)
	}
	*i = Item(raw.plain)
	i.Status = *raw.Status
	i.Brand = deref(raw.Brand)
	i.Responsible = deref(raw.Responsible)
	i.Location = deref(raw.Location)
	return nil
}

// Locked reports whether the server reported a lock holder for the item.
func (i *Item) Locked() bool {
	return i.LockedBy != ""
}

// SerialNumber returns the serial or an empty string.
func (i *Item) SerialNumber() string {
	return deref(i.Serial)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
