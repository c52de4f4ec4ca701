package model

import "time"

// Lock is the client's record of who holds an item lock and since when.
type Lock struct {
	ItemID int64     `json:"item_id"`
	User   string    `json:"user"`
	Time   time.Time `json:"time"`
}

// StatusCounters are the per-status badge counts shown to operators.
type StatusCounters struct {
	ToReceive int `json:"to_receive"`
	ToRepair  int `json:"to_repair"`
	Issued    int `json:"issued"`
}

// CountStatuses computes StatusCounters from a list of items.
func CountStatuses(items []Item) StatusCounters {
	var c StatusCounters
	for _, it := range items {
		switch it.Status {
		case StatusConfirm:
			c.ToReceive++
		case StatusConfirmRepair:
			c.ToRepair++
		case StatusIssued, StatusAtWork:
			c.Issued++
		}
	}
	return c
}
