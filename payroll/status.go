package payroll

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusDraft, StatusFinalized, StatusApproved, StatusPaid, StatusCancelled}

// transitions is the complete table of allowed status changes.
// Anything not listed is rejected. Paid has no way out.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusFinalized, StatusCancelled},
	StatusFinalized: {StatusApproved, StatusDraft, StatusCancelled},
	StatusApproved:  {StatusPaid, StatusFinalized, StatusCancelled},
	StatusPaid:      {},
	StatusCancelled: {StatusDraft},
}

// ParseStatus converts a string into a known status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s Status) AllowedTransitions() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransitionTo reports whether s -> to is in the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// StatusChange is one recorded transition.
type StatusChange struct {
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	Actor string    `json:"actor"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

// Apply performs change on b. It fails with ErrConcurrentModification
// when b is no longer in change.From, and with *InvalidTransitionError
// when the table forbids the move. Stores call this while holding
// whatever guarantees the status has not moved underneath them.
func (b *Batch) Apply(change StatusChange) error {
	if b.Status != change.From {
		return fmt.Errorf("batch %s is %s, expected %s: %w",
			b.ID, b.Status, change.From, ErrConcurrentModification)
	}
	if !change.From.CanTransitionTo(change.To) {
		return &InvalidTransitionError{From: change.From, To: change.To}
	}

	at := change.At
	switch change.To {
	case StatusFinalized:
		b.FinalizedBy, b.FinalizedAt = change.Actor, &at
	case StatusApproved:
		b.ApprovedBy, b.ApprovedAt = change.Actor, &at
	case StatusPaid:
		b.PaidBy, b.PaidAt = change.Actor, &at
	case StatusCancelled:
		b.CancelledBy, b.CancelledAt = change.Actor, &at
	}

	b.Status = change.To
	b.History = append(b.History, change)
	b.UpdatedAt = at
	return nil
}
