// Package workflow enforces the work item status graph.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/rules"
)

// ErrInvalidTransition marks a rejected status change. The wrapped message
// is suitable for showing to the user.
var ErrInvalidTransition = eris.New("invalid status transition")

// incompleteState is the validation outcome that may never jump straight
// to approved.
const incompleteState = "incomplete"

// Machine validates and applies status transitions.
type Machine struct {
	tables *rules.Tables
}

// New returns a Machine backed by tables.
func New(tables *rules.Tables) *Machine {
	return &Machine{tables: tables}
}

// ValidateStatusTransition checks graph membership only.
func (m *Machine) ValidateStatusTransition(from, to any) (bool, string) {
	f, t := normalize.ToTrimmedSafe(from), normalize.ToTrimmedSafe(to)
	if m.tables.IsValidTransition(f, t) {
		return true, fmt.Sprintf("Valid transition from %s to %s", f, t)
	}
	return false, fmt.Sprintf("Invalid transition from %s to %s. Valid transitions: %s",
		f, t, formatStatuses(m.tables.AllowedTransitions(f)))
}

// ValidateTransition checks graph membership plus the business guards: a
// rejection needs a reason, and an incomplete submission cannot be approved
// directly.
func (m *Machine) ValidateTransition(from, to any, reason string) (bool, string) {
	f, t := normalize.ToLowerSafe(from), normalize.ToLowerSafe(to)

	if f == incompleteState && t == string(model.StatusApproved) {
		return false, "Cannot approve incomplete submission directly"
	}
	if ok, msg := m.ValidateStatusTransition(from, to); !ok {
		return false, msg
	}
	if t == string(model.StatusRejected) && strings.TrimSpace(reason) == "" {
		return false, "Reason is required when rejecting a submission"
	}
	return true, fmt.Sprintf("Valid transition from %s to %s", f, t)
}

// AllowedTransitions lists the next states reachable from current.
func (m *Machine) AllowedTransitions(current any) []model.Status {
	return m.tables.AllowedTransitions(current)
}

// IsTerminal reports whether no transition leaves s.
func (m *Machine) IsTerminal(s model.Status) bool {
	return len(m.tables.AllowedTransitions(s)) == 0
}

// Graph returns the full transition table in lifecycle order.
func (m *Machine) Graph() map[model.Status][]model.Status {
	out := make(map[model.Status][]model.Status, len(model.Statuses))
	for _, s := range model.Statuses {
		out[s] = m.tables.AllowedTransitions(s)
	}
	return out
}

// Transition is a successfully applied status change.
type Transition struct {
	Item    model.WorkItem
	History model.HistoryEntry
}

// Apply validates a move of item to the target status. On success it
// returns the updated copy and the audit entry to persist; item itself is
// not modified. Failures wrap ErrInvalidTransition.
func (m *Machine) Apply(item model.WorkItem, to model.Status, reason, actor string, now time.Time) (Transition, error) {
	to = model.Status(normalize.ToLowerSafe(string(to)))
	if ok, msg := m.ValidateTransition(item.Status, to, reason); !ok {
		return Transition{}, eris.Wrap(ErrInvalidTransition, msg)
	}

	old := item.Status
	item.Status = to
	item.UpdatedAt = now

	desc := fmt.Sprintf("Status changed from %s to %s", old, to)
	if reason != "" {
		desc += ". Reason: " + reason
	}
	details := map[string]any{
		"field":     "status",
		"old_value": string(old),
		"new_value": string(to),
	}
	if reason != "" {
		details["reason"] = reason
	}

	return Transition{
		Item: item,
		History: model.HistoryEntry{
			ID:          uuid.NewString(),
			WorkItemID:  item.ID,
			Action:      model.HistoryUpdated,
			PerformedBy: actor,
			Description: desc,
			Details:     details,
			CreatedAt:   now,
		},
	}, nil
}

func formatStatuses(ss []model.Status) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = "'" + string(s) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
