package lifecycle

import (
	"fmt"
	"strings"

	"github.com/erazemk/inventar/internal/model"
)

// Params carries the operator input an action needs.
type Params struct {
	Responsible   string
	Location      string
	Brigade       *int64
	InvoiceNumber string
	Comment       string
	Reason        string
}

// ValidationError is a locally rejected action. It is never sent to the backend.
type ValidationError struct {
	ItemID int64
	Action Action
	Status model.Status
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s item %d: %s", e.Action, e.ItemID, e.Reason)
	}
	return fmt.Sprintf("cannot %s item %d in status %s", e.Action, e.ItemID, e.Status)
}

// Validate checks that action a is legal for item, that the operator may
// perform it and that p carries the input the action requires. It agrees with
// Available: an action Available does not offer is never valid.
func Validate(item *model.Item, a Action, p Params, admin bool) error {
	rule, ok := Table[a]
	if !ok {
		return &ValidationError{ItemID: item.ID, Action: a, Status: item.Status, Reason: "unknown action"}
	}
	if rule.Admin && !admin {
		return &ValidationError{ItemID: item.ID, Action: a, Status: item.Status, Reason: "admin only"}
	}
	if !Allowed(item.Status, a) {
		return &ValidationError{ItemID: item.ID, Action: a, Status: item.Status}
	}

	missing := func(field string) error {
		return &ValidationError{ItemID: item.ID, Action: a, Status: item.Status, Reason: field + " required"}
	}
	switch a {
	case Transfer:
		if blank(p.Responsible) {
			return missing("responsible")
		}
	case IssueToWork:
		if p.Brigade == nil {
			return missing("brigade")
		}
	case ConfirmRepair:
		if blank(p.InvoiceNumber) {
			return missing("invoice number")
		}
		if blank(p.Location) {
			return missing("location")
		}
	case WriteOff:
		if blank(p.Reason) {
			return missing("reason")
		}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
