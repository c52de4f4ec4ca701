package lifecycle

import (
	"fmt"
	"slices"
	"strings"

	"github.com/erazemk/inventar/internal/model"
)

// Action is an operator action on an item.
type Action string

// Actions.
const (
	Transfer          Action = "transfer"
	IssueToWork       Action = "issue-to-work"
	SendToService     Action = "send-to-service"
	ConfirmRepair     Action = "confirm-repair"
	ReturnFromService Action = "return-from-service"
	Accept            Action = "accept"
	Reject            Action = "reject"
	WriteOff          Action = "write-off"
	CancelWriteOff    Action = "cancel-write-off"
)

// Rule describes where an action may start and where it leads. An empty To
// means the backend decides the resulting status.
type Rule struct {
	From  []model.Status
	To    model.Status
	Admin bool
}

// Table is the single source of truth for which actions are offered and
// which are dispatched.
var Table = map[Action]Rule{
	Transfer:          {From: []model.Status{model.StatusAvailable}, To: model.StatusIssued},
	IssueToWork:       {From: []model.Status{model.StatusIssued}, To: model.StatusAtWork},
	SendToService:     {From: []model.Status{model.StatusIssued, model.StatusAtWork}, To: model.StatusConfirmRepair},
	ConfirmRepair:     {From: []model.Status{model.StatusConfirmRepair}, To: model.StatusInRepair},
	ReturnFromService: {From: []model.Status{model.StatusInRepair}, To: model.StatusConfirm},
	Accept:            {From: []model.Status{model.StatusConfirm}, To: model.StatusIssued},
	Reject:            {From: []model.Status{model.StatusConfirm}},
	WriteOff: {From: []model.Status{
		model.StatusAvailable,
		model.StatusIssued,
		model.StatusAtWork,
		model.StatusConfirm,
		model.StatusConfirmRepair,
		model.StatusInRepair,
	}, To: model.StatusRetired},
	CancelWriteOff: {From: []model.Status{model.StatusRetired}, To: model.StatusAvailable, Admin: true},
}

// order is the display order of actions.
var order = []Action{
	Transfer,
	IssueToWork,
	SendToService,
	ConfirmRepair,
	ReturnFromService,
	Accept,
	Reject,
	WriteOff,
	CancelWriteOff,
}

// All returns every action in display order.
func All() []Action {
	return slices.Clone(order)
}

// ParseAction converts a name into an Action.
func ParseAction(name string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := Table[a]; !ok {
		return "", fmt.Errorf("unknown action %q", name)
	}
	return a, nil
}

// Allowed reports whether action a may be performed on an item in status s.
func Allowed(s model.Status, a Action) bool {
	rule, ok := Table[a]
	if !ok {
		return false
	}
	return slices.Contains(rule.From, s)
}

// Available returns the actions offered for an item in status s. Admin-only
// actions are included only when admin is true.
func Available(s model.Status, admin bool) []Action {
	var out []Action
	for _, a := range order {
		if Table[a].Admin && !admin {
			continue
		}
		if Allowed(s, a) {
			out = append(out, a)
		}
	}
	return out
}

// Target returns the status an action leads to. It reports false when the
// backend decides, as for Reject.
func Target(a Action) (model.Status, bool) {
	rule, ok := Table[a]
	if !ok || rule.To == "" {
		return "", false
	}
	return rule.To, true
}
