package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "uq_payroll_batches_period"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
	assert.False(t, isUniqueViolation(nil))
}

func TestListQuery(t *testing.T) {
	query, args := listQuery(payroll.ListFilter{})
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)

	query, args = listQuery(payroll.ListFilter{Year: 2025, Status: payroll.StatusPaid, Limit: 5})
	assert.Contains(t, query, "WHERE year = $1 AND status = $2")
	assert.Contains(t, query, "LIMIT $3")
	assert.Equal(t, []any{2025, "paid", 5}, args)

	query, args = listQuery(payroll.ListFilter{Status: payroll.StatusDraft})
	assert.Contains(t, query, "WHERE status = $1")
	assert.Equal(t, []any{"draft"}, args)

	query, args = listQuery(payroll.ListFilter{Year: 2025, Month: 7, Limit: 10, Offset: 20})
	assert.Contains(t, query, "WHERE year = $1 AND month = $2")
	assert.Contains(t, query, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []any{2025, 7, 10, 20}, args)
}

func TestCountQuery(t *testing.T) {
	// GIVEN: A filter with paging fields set
	f := payroll.ListFilter{Month: 3, Status: payroll.StatusPaid, Limit: 10, Offset: 20}

	// WHEN: Building the count query
	query, args := countQuery(f)

	// THEN: Only the filter columns are bound
	assert.Equal(t, "SELECT COUNT(*) FROM payroll_batches WHERE month = $1 AND status = $2", query)
	assert.Equal(t, []any{3, "paid"}, args)
}

func TestParseSalary(t *testing.T) {
	v := "55000.50"
	bad := "n/a"

	assert.False(t, parseSalary(nil).Valid)
	assert.False(t, parseSalary(&bad).Valid)
	got := parseSalary(&v)
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString("55000.5")))
}

// TestStore_Integration runs against a real database when
// PAYROLL_TEST_DATABASE_URL is set.
func TestStore_Integration(t *testing.T) {
	url := os.Getenv("PAYROLL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PAYROLL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	store := New(pool)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Reset(ctx))

	p := payroll.NewPeriod(7, 2025)
	now := time.Date(2025, 7, 20, 8, 0, 0, 0, time.UTC)
	b := &payroll.Batch{
		ID: "PAYROLL-2025-07-TEST0001", Period: p, PayPeriod: p.Label(),
		PayDate: p.Next().FirstDay(), CutoffDate: p.LastDay(),
		Status: payroll.StatusDraft, GeneratedBy: "hr",
		Items:     []payroll.PayrollItem{{EmployeeID: "e1", NetSalary: decimal.NewFromInt(100)}},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, b))

	dup := *b
	dup.ID = "PAYROLL-2025-07-TEST0002"
	assert.True(t, errors.Is(store.Create(ctx, &dup), payroll.ErrBatchExists))

	change := payroll.StatusChange{From: payroll.StatusDraft, To: payroll.StatusFinalized, Actor: "hr", At: now}
	updated, err := store.UpdateStatus(ctx, b.ID, change)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusFinalized, updated.Status)
	_, err = store.UpdateStatus(ctx, b.ID, change)
	assert.True(t, errors.Is(err, payroll.ErrConcurrentModification))

	got, err := store.FindByPeriod(ctx, p)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "hr", got.FinalizedBy)

	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e1", Name: "Alice", Salary: decimal.NewNullDecimal(decimal.NewFromInt(20000)),
	}))
	roster, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.True(t, roster[0].Salary.Decimal.Equal(decimal.NewFromInt(20000)))
	assert.Empty(t, roster[0].LoadError)

	n, err := store.Count(ctx, payroll.ListFilter{Month: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	page, err := store.List(ctx, payroll.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = store.DB.Exec(ctx, `UPDATE employees SET deductions = '{"type": "loan"}' WHERE id = 'e1'`)
	require.NoError(t, err)
	roster, err = store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Contains(t, roster[0].LoadError, "deductions could not be decoded")
}
