/*
Package sqlite provides a SQLite-backed implementation of the payroll storage interfaces.

PURPOSE:
  Implements payroll.Store (batches) and payroll.Directory (employees)
  using SQLite. The PostgreSQL store in store/postgres follows the same
  layout with dialect differences only.

INTERFACES IMPLEMENTED:
  payroll.Store:     Batch persistence and status compare-and-swap
  payroll.Directory: Payroll roster

KEY TABLES:
  employees:       Employee directory (salary kept as TEXT, NULL if unknown)
  payroll_batches: One row per batch, UNIQUE(month, year)

PERIOD UNIQUENESS:
  The UNIQUE(month, year) constraint is what makes generation idempotent
  under concurrency. A second insert for the same period fails at write
  time and surfaces as payroll.ErrBatchExists.

STATUS UPDATES:
  UpdateStatus reads the batch, applies the change in Go, then writes with
  "WHERE id = ? AND status = ?". Zero affected rows means someone else
  moved the batch first: payroll.ErrConcurrentModification.

MONEY:
  Decimals are stored as TEXT to avoid float rounding. Line items, totals,
  metadata and history are JSON columns; they are only ever read back as
  a whole.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := payroll.NewEngine(store, store, calc, cfg, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.Store and payroll.Directory using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and every ":memory:"
	// connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees (payroll directory)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		employee_number TEXT,
		salary TEXT,
		active BOOLEAN,
		deductions_json TEXT,
		overrides_json TEXT,
		excluded_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Payroll batches
	CREATE TABLE IF NOT EXISTS payroll_batches (
		id TEXT PRIMARY KEY,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		pay_period TEXT NOT NULL,
		pay_date TEXT NOT NULL,
		cutoff_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		generated_by TEXT NOT NULL,
		notes TEXT,
		finalized_by TEXT,
		finalized_at TEXT,
		approved_by TEXT,
		approved_at TEXT,
		paid_by TEXT,
		paid_at TEXT,
		cancelled_by TEXT,
		cancelled_at TEXT,
		totals_json TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		history_json TEXT NOT NULL,
		items_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(month, year)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_batches_year
		ON payroll_batches(year, month DESC);
	CREATE INDEX IF NOT EXISTS idx_payroll_batches_status
		ON payroll_batches(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BATCH STORE (payroll.Store interface)
// =============================================================================

const batchColumns = `id, month, year, pay_period, pay_date, cutoff_date, status,
	generated_by, notes, finalized_by, finalized_at, approved_by, approved_at,
	paid_by, paid_at, cancelled_by, cancelled_at,
	totals_json, metadata_json, history_json, items_json, created_at, updated_at`

// FindByPeriod returns the batch for p, or nil.
func (s *Store) FindByPeriod(ctx context.Context, p payroll.Period) (*payroll.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+batchColumns+" FROM payroll_batches WHERE month = ? AND year = ?",
		p.Month, p.Year,
	)
	b, err := scanBatch(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// Create inserts a new batch. The period unique constraint turns a
// concurrent second insert into payroll.ErrBatchExists.
func (s *Store) Create(ctx context.Context, b *payroll.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalsJSON, err := json.Marshal(b.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode totals: %w", err)
	}
	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	historyJSON, err := json.Marshal(nonNilHistory(b.History))
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	itemsJSON, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("failed to encode payroll items: %w", err)
	}

	query := `
		INSERT INTO payroll_batches (` + batchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		b.ID, b.Period.Month, b.Period.Year, b.PayPeriod,
		formatTime(b.PayDate), formatTime(b.CutoffDate), string(b.Status),
		b.GeneratedBy, nullString(b.Notes),
		nullString(b.FinalizedBy), formatTimePtr(b.FinalizedAt),
		nullString(b.ApprovedBy), formatTimePtr(b.ApprovedAt),
		nullString(b.PaidBy), formatTimePtr(b.PaidAt),
		nullString(b.CancelledBy), formatTimePtr(b.CancelledAt),
		string(totalsJSON), string(metadataJSON), string(historyJSON), string(itemsJSON),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrBatchExists
		}
		return fmt.Errorf("failed to insert payroll batch: %w", err)
	}
	return nil
}

// UpdateStatus applies change if the stored status still equals change.From.
func (s *Store) UpdateStatus(ctx context.Context, id string, change payroll.StatusChange) (*payroll.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	row := sqlTx.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM payroll_batches WHERE id = ?", id)
	b, err := scanBatch(row, true)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := b.Apply(change); err != nil {
		return nil, err
	}

	historyJSON, err := json.Marshal(b.History)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	query := `
		UPDATE payroll_batches SET
			status = ?,
			finalized_by = ?, finalized_at = ?,
			approved_by = ?, approved_at = ?,
			paid_by = ?, paid_at = ?,
			cancelled_by = ?, cancelled_at = ?,
			history_json = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`
	res, err := sqlTx.ExecContext(ctx, query,
		string(b.Status),
		nullString(b.FinalizedBy), formatTimePtr(b.FinalizedAt),
		nullString(b.ApprovedBy), formatTimePtr(b.ApprovedAt),
		nullString(b.PaidBy), formatTimePtr(b.PaidAt),
		nullString(b.CancelledBy), formatTimePtr(b.CancelledAt),
		string(historyJSON),
		formatTime(b.UpdatedAt),
		id, string(change.From),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update payroll status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, payroll.ErrConcurrentModification
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return b, nil
}

// Get returns the batch with its items, or nil.
func (s *Store) Get(ctx context.Context, id string) (*payroll.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM payroll_batches WHERE id = ?", id)
	b, err := scanBatch(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// List returns batch headers, newest period first.
func (s *Store) List(ctx context.Context, f payroll.ListFilter) ([]payroll.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := listWhere(f)
	query := "SELECT " + batchColumns + " FROM payroll_batches" + where +
		" ORDER BY year DESC, month DESC, created_at DESC"
	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll batches: %w", err)
	}
	defer rows.Close()

	var batches []payroll.Batch
	for rows.Next() {
		b, err := scanBatch(rows, false)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// Count returns the number of batches matching f.
func (s *Store) Count(ctx context.Context, f payroll.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := listWhere(f)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payroll_batches"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payroll batches: %w", err)
	}
	return n, nil
}

func listWhere(f payroll.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner, withItems bool) (*payroll.Batch, error) {
	var (
		b                                                payroll.Batch
		status                                           string
		payDate, cutoffDate, createdAt, updatedAt        string
		notes                                            sql.NullString
		finalizedBy, approvedBy, paidBy, cancelledBy     sql.NullString
		finalizedAt, approvedAt, paidAt, cancelledAt     sql.NullString
		totalsJSON, metadataJSON, historyJSON, itemsJSON string
	)

	err := row.Scan(
		&b.ID, &b.Period.Month, &b.Period.Year, &b.PayPeriod,
		&payDate, &cutoffDate, &status, &b.GeneratedBy, &notes,
		&finalizedBy, &finalizedAt, &approvedBy, &approvedAt,
		&paidBy, &paidAt, &cancelledBy, &cancelledAt,
		&totalsJSON, &metadataJSON, &historyJSON, &itemsJSON,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payroll batch: %w", err)
	}

	b.Status = payroll.Status(status)
	b.Notes = notes.String
	b.PayDate = parseTime(payDate)
	b.CutoffDate = parseTime(cutoffDate)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	b.FinalizedBy, b.FinalizedAt = finalizedBy.String, parseTimePtr(finalizedAt)
	b.ApprovedBy, b.ApprovedAt = approvedBy.String, parseTimePtr(approvedAt)
	b.PaidBy, b.PaidAt = paidBy.String, parseTimePtr(paidAt)
	b.CancelledBy, b.CancelledAt = cancelledBy.String, parseTimePtr(cancelledAt)

	if err := json.Unmarshal([]byte(totalsJSON), &b.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode totals of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &b.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &b.History); err != nil {
		return nil, fmt.Errorf("failed to decode history of %s: %w", b.ID, err)
	}
	if withItems {
		if err := json.Unmarshal([]byte(itemsJSON), &b.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items of %s: %w", b.ID, err)
		}
	}
	return &b, nil
}

// =============================================================================
// EMPLOYEE STORE (payroll.Directory interface)
// =============================================================================

const employeeColumns = `id, name, employee_number, salary, active,
	deductions_json, overrides_json, excluded_json`

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp payroll.EmployeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deductionsJSON, err := json.Marshal(emp.Deductions)
	if err != nil {
		return fmt.Errorf("failed to encode deductions of %s: %w", emp.ID, err)
	}
	overridesJSON, err := json.Marshal(emp.BenefitOverrides)
	if err != nil {
		return fmt.Errorf("failed to encode benefit overrides of %s: %w", emp.ID, err)
	}
	excludedJSON, err := json.Marshal(emp.ExcludedBenefits)
	if err != nil {
		return fmt.Errorf("failed to encode excluded benefits of %s: %w", emp.ID, err)
	}

	var salary sql.NullString
	if emp.Salary.Valid {
		salary = sql.NullString{String: emp.Salary.Decimal.String(), Valid: true}
	}
	var active sql.NullBool
	if emp.Active != nil {
		active = sql.NullBool{Bool: *emp.Active, Valid: true}
	}

	query := `
		INSERT INTO employees (` + employeeColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			employee_number = excluded.employee_number,
			salary = excluded.salary,
			active = excluded.active,
			deductions_json = excluded.deductions_json,
			overrides_json = excluded.overrides_json,
			excluded_json = excluded.excluded_json,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now().UTC())
	_, err = s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, nullString(emp.Number), salary, active,
		string(deductionsJSON), string(overridesJSON), string(excludedJSON),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee %s: %w", emp.ID, err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID, or nil.
func (s *Store) GetEmployee(ctx context.Context, id string) (*payroll.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns all employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]payroll.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEmployees(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
}

// ListActive returns the payroll roster ordered by id.
func (s *Store) ListActive(ctx context.Context) ([]payroll.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.queryEmployees(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE active IS NULL OR active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}

	// Salary eligibility needs decimal comparison, so it is checked here.
	roster := make([]payroll.EmployeeRecord, 0, len(all))
	for _, emp := range all {
		if emp.Eligible() {
			roster = append(roster, emp)
		}
	}
	return roster, nil
}

// DeleteEmployee removes an employee.
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	return err
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]payroll.EmployeeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []payroll.EmployeeRecord
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func scanEmployee(row rowScanner) (payroll.EmployeeRecord, error) {
	var (
		emp                                         payroll.EmployeeRecord
		number, salary                              sql.NullString
		active                                      sql.NullBool
		deductionsJSON, overridesJSON, excludedJSON sql.NullString
	)

	err := row.Scan(&emp.ID, &emp.Name, &number, &salary, &active,
		&deductionsJSON, &overridesJSON, &excludedJSON)
	if err == sql.ErrNoRows {
		return emp, err
	}
	if err != nil {
		return emp, fmt.Errorf("failed to scan employee: %w", err)
	}

	emp.Number = number.String
	emp.Salary = parseSalary(salary)
	if active.Valid {
		v := active.Bool
		emp.Active = &v
	}
	emp.LoadError = decodeColumns(
		column{"deductions", deductionsJSON, &emp.Deductions},
		column{"benefit overrides", overridesJSON, &emp.BenefitOverrides},
		column{"excluded benefits", excludedJSON, &emp.ExcludedBenefits},
	)
	return emp, nil
}

// column is a JSON employee column and where it decodes to.
type column struct {
	name string
	raw  sql.NullString
	dest any
}

// decodeColumns decodes each non-empty column and describes the failures,
// or returns "". The caller keeps the record; the engine fails it.
func decodeColumns(cols ...column) string {
	var failed []string
	for _, c := range cols {
		if !c.raw.Valid || c.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw.String), c.dest); err != nil {
			failed = append(failed, fmt.Sprintf("%s could not be decoded: %v", c.name, err))
		}
	}
	return strings.Join(failed, "; ")
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payroll_batches", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

// parseSalary keeps a stored value that is not a number as an invalid
// salary so the engine reports it per employee.
func parseSalary(v sql.NullString) decimal.NullDecimal {
	if !v.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.String))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nonNilHistory(h []payroll.StatusChange) []payroll.StatusChange {
	if h == nil {
		return []payroll.StatusChange{}
	}
	return h
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
