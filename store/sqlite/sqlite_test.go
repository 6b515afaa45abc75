package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/benefits"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
	"github.com/warp/payroll-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBatch(id string, month, year int) *payroll.Batch {
	p := payroll.NewPeriod(month, year)
	created := time.Date(year, time.Month(month), 20, 8, 30, 0, 0, time.UTC)
	item := payroll.PayrollItem{
		EmployeeID:   "e1",
		EmployeeName: "Alice",
		BasicSalary:  decimal.NewFromInt(50000),
		GrossSalary:  decimal.NewFromInt(50000),
		Deductions: []payroll.DeductionLine{
			{Type: "PAYE", Kind: payroll.KindStatutory, Amount: decimal.RequireFromString("5983"), Recurring: true},
		},
		TotalDeductions: decimal.RequireFromString("5983"),
		NetSalary:       decimal.RequireFromString("44017"),
	}
	var totals payroll.Totals
	totals.Add(item)
	return &payroll.Batch{
		ID:          id,
		Period:      p,
		PayPeriod:   p.Label(),
		PayDate:     p.Next().FirstDay(),
		CutoffDate:  p.LastDay(),
		Status:      payroll.StatusDraft,
		Items:       []payroll.PayrollItem{item},
		Totals:      totals,
		Metadata:    payroll.Metadata{ProcessingTime: 42 * time.Millisecond, Warnings: []string{"w"}},
		GeneratedBy: "hr",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	b := sampleBatch("PAYROLL-2025-07-AAAA0001", 7, 2025)

	require.NoError(t, store.Create(ctx, b))

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.Period, got.Period)
	assert.Equal(t, "July 2025", got.PayPeriod)
	assert.Equal(t, b.PayDate, got.PayDate)
	assert.Equal(t, b.CreatedAt, got.CreatedAt)
	assert.Equal(t, payroll.StatusDraft, got.Status)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].NetSalary.Equal(decimal.RequireFromString("44017")))
	assert.True(t, got.Totals.NetPay.Equal(b.Totals.NetPay))
	assert.Equal(t, 42*time.Millisecond, got.Metadata.ProcessingTime)
	assert.Empty(t, got.History)
}

func TestStore_GetMissing(t *testing.T) {
	store := newStore(t)

	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.FindByPeriod(context.Background(), payroll.NewPeriod(1, 2030))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_PeriodUniqueness(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Create(ctx, sampleBatch("a", 7, 2025)))

	err := store.Create(ctx, sampleBatch("b", 7, 2025))

	assert.True(t, errors.Is(err, payroll.ErrBatchExists))
	found, err := store.FindByPeriod(ctx, payroll.NewPeriod(7, 2025))
	require.NoError(t, err)
	assert.Equal(t, "a", found.ID)
}

func TestStore_ConcurrentCreateSamePeriod(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Create(ctx, sampleBatch(string(rune('a'+i)), 3, 2026))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, payroll.ErrBatchExists), "unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Create(ctx, sampleBatch("a", 7, 2025)))
	at := time.Date(2025, 7, 28, 10, 0, 0, 0, time.UTC)

	updated, err := store.UpdateStatus(ctx, "a", payroll.StatusChange{
		From: payroll.StatusDraft, To: payroll.StatusFinalized, Actor: "hr", At: at, Notes: "checked",
	})
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusFinalized, updated.Status)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusFinalized, got.Status)
	assert.Equal(t, "hr", got.FinalizedBy)
	require.NotNil(t, got.FinalizedAt)
	assert.Equal(t, at, *got.FinalizedAt)
	require.Len(t, got.History, 1)
	assert.Equal(t, "checked", got.History[0].Notes)
	assert.Equal(t, at, got.UpdatedAt)
}

func TestStore_UpdateStatusStaleAndMissing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Create(ctx, sampleBatch("a", 7, 2025)))
	change := payroll.StatusChange{From: payroll.StatusDraft, To: payroll.StatusFinalized, Actor: "hr", At: time.Now()}

	_, err := store.UpdateStatus(ctx, "a", change)
	require.NoError(t, err)

	_, err = store.UpdateStatus(ctx, "a", change)
	assert.True(t, errors.Is(err, payroll.ErrConcurrentModification))

	_, err = store.UpdateStatus(ctx, "missing", change)
	assert.True(t, errors.Is(err, payroll.ErrBatchNotFound))

	_, err = store.UpdateStatus(ctx, "a", payroll.StatusChange{
		From: payroll.StatusFinalized, To: payroll.StatusPaid, Actor: "hr", At: time.Now(),
	})
	assert.True(t, errors.Is(err, payroll.ErrInvalidTransition))
}

func TestStore_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Create(ctx, sampleBatch("mar", 3, 2025)))
	require.NoError(t, store.Create(ctx, sampleBatch("nov", 11, 2025)))
	require.NoError(t, store.Create(ctx, sampleBatch("jun", 6, 2025)))
	require.NoError(t, store.Create(ctx, sampleBatch("dec24", 12, 2024)))
	_, err := store.UpdateStatus(ctx, "jun", payroll.StatusChange{
		From: payroll.StatusDraft, To: payroll.StatusCancelled, Actor: "hr", At: time.Now(),
	})
	require.NoError(t, err)

	all, err := store.List(ctx, payroll.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"nov", "jun", "mar", "dec24"}, ids(all))
	assert.Nil(t, all[0].Items)

	year, err := store.List(ctx, payroll.ListFilter{Year: 2025, Status: payroll.StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, []string{"nov", "mar"}, ids(year))

	limited, err := store.List(ctx, payroll.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"nov"}, ids(limited))
}

func TestStore_ListMonthPagesAndCount(t *testing.T) {
	// GIVEN: Four batches across two years, two of them in June
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Create(ctx, sampleBatch("mar", 3, 2025)))
	require.NoError(t, store.Create(ctx, sampleBatch("nov", 11, 2025)))
	require.NoError(t, store.Create(ctx, sampleBatch("jun", 6, 2025)))
	require.NoError(t, store.Create(ctx, sampleBatch("jun24", 6, 2024)))

	// WHEN: Filtering by month
	june, err := store.List(ctx, payroll.ListFilter{Month: 6})
	require.NoError(t, err)
	juneCount, err := store.Count(ctx, payroll.ListFilter{Month: 6})
	require.NoError(t, err)

	// THEN: Both Junes, newest first
	assert.Equal(t, []string{"jun", "jun24"}, ids(june))
	assert.Equal(t, 2, juneCount)

	// WHEN: Paging
	second, err := store.List(ctx, payroll.ListFilter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	skipped, err := store.List(ctx, payroll.ListFilter{Offset: 1})
	require.NoError(t, err)
	total, err := store.Count(ctx, payroll.ListFilter{Limit: 3, Offset: 3})
	require.NoError(t, err)

	// THEN: Offsets apply with or without a limit and never change the count
	assert.Equal(t, []string{"jun24"}, ids(second))
	assert.Equal(t, []string{"jun", "mar", "jun24"}, ids(skipped))
	assert.Equal(t, 4, total)
}

func TestStore_Employees(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	inactive := false

	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e2", Name: "Bob", Number: "N-2",
		Salary: decimal.NewNullDecimal(decimal.NewFromInt(55000)),
		Deductions: []payroll.DeductionLine{
			{Type: "Sacco", Kind: payroll.KindCustom, Amount: decimal.NewFromInt(1000), Recurring: true},
		},
		BenefitOverrides: map[string]decimal.Decimal{"Transport Allowance": decimal.NewFromInt(4500)},
		ExcludedBenefits: []string{"Phone Allowance"},
	}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e1", Name: "Alice", Salary: decimal.NewNullDecimal(decimal.NewFromInt(20000)),
	}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e3", Name: "Carol", Salary: decimal.NewNullDecimal(decimal.NewFromInt(1)), Active: &inactive,
	}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{ID: "e4", Name: "Dan"}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e5", Name: "Eve", Salary: decimal.NewNullDecimal(decimal.Zero),
	}))

	got, err := store.GetEmployee(ctx, "e2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "N-2", got.Number)
	assert.True(t, got.Salary.Decimal.Equal(decimal.NewFromInt(55000)))
	require.Len(t, got.Deductions, 1)
	assert.Equal(t, payroll.KindCustom, got.Deductions[0].Kind)
	assert.True(t, got.BenefitOverrides["Transport Allowance"].Equal(decimal.NewFromInt(4500)))
	assert.Equal(t, []string{"Phone Allowance"}, got.ExcludedBenefits)
	assert.Nil(t, got.Active)

	all, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	roster, err := store.ListActive(ctx)
	require.NoError(t, err)
	var rosterIDs []string
	for _, r := range roster {
		rosterIDs = append(rosterIDs, r.ID)
	}
	// e3 is inactive, e5 has no salary; e4's unknown salary stays so it fails visibly.
	assert.Equal(t, []string{"e1", "e2", "e4"}, rosterIDs)

	missing, err := store.GetEmployee(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.DeleteEmployee(ctx, "e1"))
	all, err = store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Create(ctx, sampleBatch("a", 7, 2025)))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{ID: "e1", Name: "A"}))

	require.NoError(t, store.Reset(ctx))

	list, err := store.List(ctx, payroll.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	emps, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, emps)
}

func ids(bs []payroll.Batch) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func TestStore_UndecodableEmployeeColumnFailsThatEmployee(t *testing.T) {
	// GIVEN: Two employees in a file database, one whose deductions column
	// was later overwritten with truncated JSON
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payroll.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loan := payroll.DeductionLine{Type: "Loan", Amount: decimal.NewFromInt(5000), Recurring: true}
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e1", Name: "Alice", Salary: decimal.NewNullDecimal(decimal.NewFromInt(60000)),
		Deductions: []payroll.DeductionLine{loan},
	}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeRecord{
		ID: "e2", Name: "Bob", Salary: decimal.NewNullDecimal(decimal.NewFromInt(40000)),
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE employees SET deductions_json = '[{"type":"loan"' WHERE id = 'e1'`)
	require.NoError(t, err)

	// WHEN: Reading the roster and generating July 2025
	roster, err := store.ListActive(ctx)
	require.NoError(t, err)

	engine := payroll.NewEngine(store, store,
		payroll.NewCalculator(statutory.New(), benefits.NewRegistry()),
		payroll.EngineConfig{}, zap.NewNop())
	engine.Now = func() time.Time { return time.Date(2025, time.July, 10, 9, 0, 0, 0, time.UTC) }
	res, err := engine.Generate(ctx, payroll.GenerateRequest{Month: 7, Year: 2025})

	// THEN: Alice stays on the roster but is recorded as failed, not paid without her loan
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Contains(t, roster[0].LoadError, "deductions could not be decoded")
	assert.Empty(t, roster[1].LoadError)

	require.True(t, res.Created())
	assert.Equal(t, 1, res.Summary.Employees)
	assert.Equal(t, 1, res.Summary.ErrorCount)

	b, err := store.Get(ctx, res.Summary.BatchID)
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "e2", b.Items[0].EmployeeID)
	require.Len(t, b.Metadata.Errors, 1)
	assert.Equal(t, "e1", b.Metadata.Errors[0].EmployeeID)
	assert.Contains(t, b.Metadata.Errors[0].Message, "deductions could not be decoded")
	assert.Equal(t, []string{"Skipped Alice due to calculation error"}, b.Metadata.Warnings)
}
