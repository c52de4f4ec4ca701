package model

// HistoryEntry is one line of an item's audit trail. Entries are produced by
// the backend and are read-only on the client.
type HistoryEntry struct {
	ID           int64  `json:"id"`
	Date         string `json:"date"`
	Action       string `json:"action"`
	ActionType   string `json:"action_type,omitempty"`
	Comment      string `json:"comment,omitempty"`
	User         *int64 `json:"user,omitempty"`
	UserUsername string `json:"user_username,omitempty"`
	Location     *int64 `json:"location,omitempty"`
}

// HistoryDateLayout is the layout of HistoryEntry.Date.
const HistoryDateLayout = "02.01.06 15:04"

// History action types.
const (
	ActionCreated         = "created"
	ActionUpdated         = "updated"
	ActionSentToService   = "sent_to_service"
	ActionRepairConfirmed = "repair_confirmed"
	ActionReturned        = "returned_from_service"
	ActionAccepted        = "accepted"
	ActionRejected        = "rejected"
	ActionWrittenOff      = "written_off"
	ActionWriteOffCancel  = "write_off_cancelled"
	ActionLocked          = "locked"
	ActionUnlocked        = "unlocked"
)
