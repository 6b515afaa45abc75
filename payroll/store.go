/*
store.go - Collaborator interfaces for the payroll engine

PURPOSE:
  The engine reads the roster from a Directory and persists batches in a
  Store. Both are interfaces so the engine runs the same against memory,
  SQLite or PostgreSQL.

ATOMICITY:
  Store.Create must refuse a second batch for the same period at write
  time (unique constraint or equivalent lock), returning ErrBatchExists.
  A prior FindByPeriod is only a fast path.

  Store.UpdateStatus must compare-and-swap on change.From so two
  competing transitions cannot both win.

IMPLEMENTATIONS:
  - payroll/store: in-memory (tests, dev)
  - store/sqlite:  SQLite
  - store/postgres: PostgreSQL via pgx
*/
package payroll

import "context"

// Directory supplies the payroll roster.
type Directory interface {
	// ListActive returns employees eligible for payroll. See EmployeeRecord.Eligible.
	ListActive(ctx context.Context) ([]EmployeeRecord, error)
}

// Store persists batches.
type Store interface {
	// FindByPeriod returns the batch for p, or nil if none exists.
	FindByPeriod(ctx context.Context, p Period) (*Batch, error)

	// Create persists a new batch. Returns ErrBatchExists if the period is taken.
	Create(ctx context.Context, b *Batch) error

	// UpdateStatus applies change if the batch is still in change.From.
	// Returns ErrBatchNotFound or ErrConcurrentModification otherwise.
	UpdateStatus(ctx context.Context, id string, change StatusChange) (*Batch, error)

	// Get returns the batch with its items, or nil if not found.
	Get(ctx context.Context, id string) (*Batch, error)

	// List returns batch headers (Items is nil), newest period first,
	// skipping f.Offset matches and returning at most f.Limit.
	List(ctx context.Context, f ListFilter) ([]Batch, error)

	// Count returns how many batches match f, ignoring Limit and Offset.
	Count(ctx context.Context, f ListFilter) (int, error)
}

// ListFilter narrows Store.List. Zero values mean "any".
type ListFilter struct {
	Year   int
	Month  int
	Status Status
	Limit  int
	Offset int
}

// Matches reports whether b passes the filter (ignoring Limit and Offset).
func (f ListFilter) Matches(b *Batch) bool {
	if f.Year != 0 && b.Period.Year != f.Year {
		return false
	}
	if f.Month != 0 && b.Period.Month != f.Month {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}
