// Package store provides in-memory payroll.Store and payroll.Directory
// implementations, and a Backend combining the two for memory mode.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps batches in maps guarded by one mutex, so the period check
// and the insert in Create are a single critical section.
type Memory struct {
	mu       sync.RWMutex
	batches  map[string]*payroll.Batch
	byPeriod map[payroll.Period]string
}

// NewMemory creates an empty batch store.
func NewMemory() *Memory {
	return &Memory{
		batches:  make(map[string]*payroll.Batch),
		byPeriod: make(map[payroll.Period]string),
	}
}

// FindByPeriod returns the batch for p, or nil.
func (m *Memory) FindByPeriod(_ context.Context, p payroll.Period) (*payroll.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPeriod[p]
	if !ok {
		return nil, nil
	}
	return m.batches[id].Clone(), nil
}

// Create stores b unless its period or id is taken.
func (m *Memory) Create(_ context.Context, b *payroll.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byPeriod[b.Period]; taken {
		return payroll.ErrBatchExists
	}
	if _, taken := m.batches[b.ID]; taken {
		return payroll.ErrBatchExists
	}
	m.batches[b.ID] = b.Clone()
	m.byPeriod[b.Period] = b.ID
	return nil
}

// UpdateStatus applies change under the write lock.
func (m *Memory) UpdateStatus(_ context.Context, id string, change payroll.StatusChange) (*payroll.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, payroll.ErrBatchNotFound
	}
	next := b.Clone()
	if err := next.Apply(change); err != nil {
		return nil, err
	}
	m.batches[id] = next
	return next.Clone(), nil
}

// Get returns the batch, or nil.
func (m *Memory) Get(_ context.Context, id string) (*payroll.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

// List returns headers newest period first.
func (m *Memory) List(_ context.Context, f payroll.ListFilter) ([]payroll.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.Batch
	for _, b := range m.batches {
		if !f.Matches(b) {
			continue
		}
		h := b.Clone()
		h.Items = nil
		result = append(result, *h)
	}
	sortNewestFirst(result)
	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return nil, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// Count returns the number of batches matching f.
func (m *Memory) Count(_ context.Context, f payroll.ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, b := range m.batches {
		if f.Matches(b) {
			n++
		}
	}
	return n, nil
}

// Reset removes every batch.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = make(map[string]*payroll.Batch)
	m.byPeriod = make(map[payroll.Period]string)
	return nil
}

func sortNewestFirst(bs []payroll.Batch) {
	sort.Slice(bs, func(i, j int) bool {
		pi, pj := bs[i].Period, bs[j].Period
		if pi.Year != pj.Year {
			return pi.Year > pj.Year
		}
		if pi.Month != pj.Month {
			return pi.Month > pj.Month
		}
		return bs[i].CreatedAt.After(bs[j].CreatedAt)
	})
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// Backend pairs a Directory with a Memory batch store so both can be
// served and wiped together, like the tables of one database.
type Backend struct {
	*Directory
	*Memory
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{Directory: NewDirectory(), Memory: NewMemory()}
}

// Reset removes every employee and every batch.
func (b *Backend) Reset(ctx context.Context) error {
	if err := b.Memory.Reset(ctx); err != nil {
		return err
	}
	return b.Directory.Reset(ctx)
}

// =============================================================================
// MEMORY DIRECTORY
// =============================================================================

// Directory is an in-memory employee directory.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]payroll.EmployeeRecord
}

// NewDirectory creates a directory holding records.
func NewDirectory(records ...payroll.EmployeeRecord) *Directory {
	d := &Directory{employees: make(map[string]payroll.EmployeeRecord)}
	for _, r := range records {
		d.employees[r.ID] = r
	}
	return d
}

// Put adds or replaces a record.
func (d *Directory) Put(r payroll.EmployeeRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[r.ID] = r
}

// SaveEmployee adds or replaces a record.
func (d *Directory) SaveEmployee(_ context.Context, r payroll.EmployeeRecord) error {
	d.Put(r)
	return nil
}

// GetEmployee returns the record, or nil.
func (d *Directory) GetEmployee(_ context.Context, id string) (*payroll.EmployeeRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.employees[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListEmployees returns every record ordered by id.
func (d *Directory) ListEmployees(_ context.Context) ([]payroll.EmployeeRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sorted(func(payroll.EmployeeRecord) bool { return true }), nil
}

// Reset removes every record.
func (d *Directory) Reset(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees = make(map[string]payroll.EmployeeRecord)
	return nil
}

// ListActive returns eligible records ordered by id.
func (d *Directory) ListActive(_ context.Context) ([]payroll.EmployeeRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sorted(payroll.EmployeeRecord.Eligible), nil
}

func (d *Directory) sorted(keep func(payroll.EmployeeRecord) bool) []payroll.EmployeeRecord {
	result := make([]payroll.EmployeeRecord, 0, len(d.employees))
	for _, r := range d.employees {
		if keep(r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
