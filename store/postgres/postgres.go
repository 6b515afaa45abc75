/*
Package postgres provides a PostgreSQL-backed implementation of the payroll
storage interfaces using pgx.

PURPOSE:
  Production counterpart of store/sqlite. Same tables, same semantics:
  UNIQUE(month, year) enforces one batch per period, status updates are
  conditional on the previous status.

DIFFERENCES FROM SQLITE:
  - JSONB for items, totals, metadata and history
  - TIMESTAMPTZ columns scanned straight into time.Time
  - SELECT ... FOR UPDATE inside the status transaction
  - unique violations detected by SQLSTATE 23505

USAGE:
  pool, err := postgres.Connect(ctx, cfg.Database.URL)
  store := postgres.New(pool)
  if err := store.Migrate(ctx); err != nil { ... }
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Connect opens a connection pool for the given URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Store implements payroll.Store and payroll.Directory.
type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Close releases the pool.
func (s *Store) Close() {
	s.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	employee_number TEXT,
	salary TEXT,
	active BOOLEAN,
	deductions JSONB NOT NULL DEFAULT '[]',
	benefit_overrides JSONB NOT NULL DEFAULT '{}',
	excluded_benefits JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payroll_batches (
	id TEXT PRIMARY KEY,
	month INT NOT NULL CHECK (month BETWEEN 1 AND 12),
	year INT NOT NULL,
	pay_period TEXT NOT NULL,
	pay_date TIMESTAMPTZ NOT NULL,
	cutoff_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	generated_by TEXT NOT NULL,
	notes TEXT,
	finalized_by TEXT,
	finalized_at TIMESTAMPTZ,
	approved_by TEXT,
	approved_at TIMESTAMPTZ,
	paid_by TEXT,
	paid_at TIMESTAMPTZ,
	cancelled_by TEXT,
	cancelled_at TIMESTAMPTZ,
	totals JSONB NOT NULL,
	metadata JSONB NOT NULL,
	history JSONB NOT NULL DEFAULT '[]',
	items JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT uq_payroll_batches_period UNIQUE (month, year)
);

CREATE INDEX IF NOT EXISTS idx_payroll_batches_status ON payroll_batches(status);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate payroll schema: %w", err)
	}
	return nil
}

// =============================================================================
// BATCHES
// =============================================================================

const headerColumns = `id, month, year, pay_period, pay_date, cutoff_date, status,
	generated_by, COALESCE(notes, ''),
	COALESCE(finalized_by, ''), finalized_at, COALESCE(approved_by, ''), approved_at,
	COALESCE(paid_by, ''), paid_at, COALESCE(cancelled_by, ''), cancelled_at,
	totals, metadata, history, created_at, updated_at`

// FindByPeriod returns the batch for p, or nil.
func (s *Store) FindByPeriod(ctx context.Context, p payroll.Period) (*payroll.Batch, error) {
	row := s.DB.QueryRow(ctx,
		"SELECT "+headerColumns+", items FROM payroll_batches WHERE month = $1 AND year = $2",
		p.Month, p.Year)
	b, err := scanBatch(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// Create inserts b; a taken period yields payroll.ErrBatchExists.
func (s *Store) Create(ctx context.Context, b *payroll.Batch) error {
	totals, err := json.Marshal(b.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode totals: %w", err)
	}
	metadata, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	history := b.History
	if history == nil {
		history = []payroll.StatusChange{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	items, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("failed to encode payroll items: %w", err)
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO payroll_batches (id, month, year, pay_period, pay_date, cutoff_date, status,
			generated_by, notes, finalized_by, finalized_at, approved_by, approved_at,
			paid_by, paid_at, cancelled_by, cancelled_at,
			totals, metadata, history, items, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		b.ID, b.Period.Month, b.Period.Year, b.PayPeriod, b.PayDate, b.CutoffDate, string(b.Status),
		b.GeneratedBy, nullable(b.Notes),
		nullable(b.FinalizedBy), b.FinalizedAt, nullable(b.ApprovedBy), b.ApprovedAt,
		nullable(b.PaidBy), b.PaidAt, nullable(b.CancelledBy), b.CancelledAt,
		totals, metadata, historyJSON, items, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return payroll.ErrBatchExists
		}
		return fmt.Errorf("failed to insert payroll batch: %w", err)
	}
	return nil
}

// UpdateStatus locks the row, applies change and writes it back only if
// the status is still change.From.
func (s *Store) UpdateStatus(ctx context.Context, id string, change payroll.StatusChange) (*payroll.Batch, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		"SELECT "+headerColumns+", items FROM payroll_batches WHERE id = $1 FOR UPDATE", id)
	b, err := scanBatch(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_batches SET
			status = $1,
			finalized_by = $2, finalized_at = $3,
			approved_by = $4, approved_at = $5,
			paid_by = $6, paid_at = $7,
			cancelled_by = $8, cancelled_at = $9,
			history = $10, updated_at = $11
		WHERE id = $12 AND status = $13`,
		string(b.Status),
		nullable(b.FinalizedBy), b.FinalizedAt,
		nullable(b.ApprovedBy), b.ApprovedAt,
		nullable(b.PaidBy), b.PaidAt,
		nullable(b.CancelledBy), b.CancelledAt,
		historyJSON, b.UpdatedAt,
		id, string(change.From),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update payroll status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, payroll.ErrConcurrentModification
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return b, nil
}

// Get returns the batch with items, or nil.
func (s *Store) Get(ctx context.Context, id string) (*payroll.Batch, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+headerColumns+", items FROM payroll_batches WHERE id = $1", id)
	b, err := scanBatch(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// List returns headers newest period first.
func (s *Store) List(ctx context.Context, f payroll.ListFilter) ([]payroll.Batch, error) {
	query, args := listQuery(f)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll batches: %w", err)
	}
	defer rows.Close()

	var out []payroll.Batch
	for rows.Next() {
		b, err := scanBatch(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Count returns the number of batches matching f.
func (s *Store) Count(ctx context.Context, f payroll.ListFilter) (int, error) {
	query, args := countQuery(f)
	var n int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payroll batches: %w", err)
	}
	return n, nil
}

// listQuery builds the filtered header query with positional arguments.
func listQuery(f payroll.ListFilter) (string, []any) {
	where, args := listWhere(f)
	query := "SELECT " + headerColumns + " FROM payroll_batches" + where +
		" ORDER BY year DESC, month DESC, created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func countQuery(f payroll.ListFilter) (string, []any) {
	where, args := listWhere(f)
	return "SELECT COUNT(*) FROM payroll_batches" + where, args
}

func listWhere(f payroll.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Year != 0 {
		args = append(args, f.Year)
		where = append(where, fmt.Sprintf("year = $%d", len(args)))
	}
	if f.Month != 0 {
		args = append(args, f.Month)
		where = append(where, fmt.Sprintf("month = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func scanBatch(row pgx.Row, withItems bool) (*payroll.Batch, error) {
	var (
		b                                payroll.Batch
		status                           string
		totals, metadata, history, items []byte
	)
	dest := []any{
		&b.ID, &b.Period.Month, &b.Period.Year, &b.PayPeriod, &b.PayDate, &b.CutoffDate, &status,
		&b.GeneratedBy, &b.Notes,
		&b.FinalizedBy, &b.FinalizedAt, &b.ApprovedBy, &b.ApprovedAt,
		&b.PaidBy, &b.PaidAt, &b.CancelledBy, &b.CancelledAt,
		&totals, &metadata, &history, &b.CreatedAt, &b.UpdatedAt,
	}
	if withItems {
		dest = append(dest, &items)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payroll batch: %w", err)
	}

	b.Status = payroll.Status(status)
	if err := json.Unmarshal(totals, &b.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode totals of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(history, &b.History); err != nil {
		return nil, fmt.Errorf("failed to decode history of %s: %w", b.ID, err)
	}
	if withItems {
		if err := json.Unmarshal(items, &b.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items of %s: %w", b.ID, err)
		}
	}
	return &b, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, COALESCE(employee_number, ''), salary, active,
	deductions, benefit_overrides, excluded_benefits`

// SaveEmployee upserts an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp payroll.EmployeeRecord) error {
	deductions, err := json.Marshal(orEmpty(emp.Deductions))
	if err != nil {
		return fmt.Errorf("failed to encode deductions of %s: %w", emp.ID, err)
	}
	overrides, err := json.Marshal(emp.BenefitOverrides)
	if err != nil {
		return fmt.Errorf("failed to encode benefit overrides of %s: %w", emp.ID, err)
	}
	excluded, err := json.Marshal(orEmpty(emp.ExcludedBenefits))
	if err != nil {
		return fmt.Errorf("failed to encode excluded benefits of %s: %w", emp.ID, err)
	}

	var salary *string
	if emp.Salary.Valid {
		v := emp.Salary.Decimal.String()
		salary = &v
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO employees (id, name, employee_number, salary, active,
			deductions, benefit_overrides, excluded_benefits)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::jsonb, '{}'::jsonb), $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			employee_number = EXCLUDED.employee_number,
			salary = EXCLUDED.salary,
			active = EXCLUDED.active,
			deductions = EXCLUDED.deductions,
			benefit_overrides = EXCLUDED.benefit_overrides,
			excluded_benefits = EXCLUDED.excluded_benefits,
			updated_at = now()`,
		emp.ID, emp.Name, nullable(emp.Number), salary, emp.Active,
		deductions, nullJSON(overrides), excluded,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee %s: %w", emp.ID, err)
	}
	return nil
}

// GetEmployee returns the employee, or nil.
func (s *Store) GetEmployee(ctx context.Context, id string) (*payroll.EmployeeRecord, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns every employee ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]payroll.EmployeeRecord, error) {
	return s.queryEmployees(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
}

// ListActive returns the payroll roster ordered by id.
func (s *Store) ListActive(ctx context.Context) ([]payroll.EmployeeRecord, error) {
	all, err := s.queryEmployees(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE active IS DISTINCT FROM FALSE ORDER BY id")
	if err != nil {
		return nil, err
	}
	roster := make([]payroll.EmployeeRecord, 0, len(all))
	for _, emp := range all {
		if emp.Eligible() {
			roster = append(roster, emp)
		}
	}
	return roster, nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, "TRUNCATE payroll_batches, employees")
	return err
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]payroll.EmployeeRecord, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []payroll.EmployeeRecord
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func scanEmployee(row pgx.Row) (payroll.EmployeeRecord, error) {
	var (
		emp                             payroll.EmployeeRecord
		salary                          *string
		deductions, overrides, excluded []byte
	)
	if err := row.Scan(&emp.ID, &emp.Name, &emp.Number, &salary, &emp.Active,
		&deductions, &overrides, &excluded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emp, err
		}
		return emp, fmt.Errorf("failed to scan employee: %w", err)
	}

	emp.Salary = parseSalary(salary)
	var failed []string
	for _, c := range []struct {
		name string
		raw  []byte
		dest any
	}{
		{"deductions", deductions, &emp.Deductions},
		{"benefit overrides", overrides, &emp.BenefitOverrides},
		{"excluded benefits", excluded, &emp.ExcludedBenefits},
	} {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dest); err != nil {
			failed = append(failed, fmt.Sprintf("%s could not be decoded: %v", c.name, err))
		}
	}
	// Kept on the roster so the engine reports the employee as failed.
	emp.LoadError = strings.Join(failed, "; ")
	return emp, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func parseSalary(v *string) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*v))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullJSON(b []byte) []byte {
	if string(b) == "null" {
		return nil
	}
	return b
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
