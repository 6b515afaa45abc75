/*
types.go - Core value types for payroll computation

PURPOSE:
  Defines the records that flow through the engine: the employee input,
  deduction and benefit lines, the per-employee payroll item and the
  period-scoped batch that aggregates them.

MONEY:
  All amounts are decimal.Decimal. Floats never touch money. Rounding
  happens at line granularity (see money.go) and totals are plain sums
  of already-rounded values.

KEY TYPES:
  Period:         (month, year) pair, the idempotency key of a batch
  EmployeeRecord: read-only input owned by the employee directory
  DeductionLine:  tagged deduction (statutory, custom, advance, loan)
  BenefitLine:    resolved benefit
  PayrollItem:    one employee's result for a period
  Batch:          persisted aggregate for one period

SEE ALSO:
  - compute.go: Builds PayrollItem from EmployeeRecord
  - engine.go: Builds Batch from a roster
  - status.go: Batch lifecycle
*/
package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD
// =============================================================================

// Period identifies one payroll run. At most one batch exists per period.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// NewPeriod creates a period. It does not validate; see ValidateRequest.
func NewPeriod(month, year int) Period {
	return Period{Month: month, Year: year}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// String returns the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Label returns the human label used on payslips, e.g. "July 2025".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", time.Month(p.Month), p.Year)
}

// FirstDay returns midnight UTC on the first day of the period.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC on the last day of the period.
func (p Period) LastDay() time.Time {
	return p.FirstDay().AddDate(0, 1, -1)
}

// Next returns the following period.
func (p Period) Next() Period {
	return PeriodOf(p.FirstDay().AddDate(0, 1, 0))
}

// =============================================================================
// EMPLOYEE INPUT
// =============================================================================

// EmployeeRecord is the engine's view of an employee. The engine never
// mutates it.
type EmployeeRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"employee_number,omitempty"`

	// Salary is invalid when the directory holds a missing or
	// non-numeric value. Such records fail computation individually.
	Salary decimal.NullDecimal `json:"salary"`

	Deductions       []DeductionLine            `json:"deductions,omitempty"`
	BenefitOverrides map[string]decimal.Decimal `json:"benefit_overrides,omitempty"`
	ExcludedBenefits []string                   `json:"excluded_benefits,omitempty"`

	// Active is nil when the directory does not track the flag.
	Active *bool `json:"active,omitempty"`

	// LoadError is set by a store when a stored column could not be
	// decoded. The record stays on the roster and fails computation.
	LoadError string `json:"-"`
}

// IsActive reports whether the employee is active. An absent flag counts as active.
func (e EmployeeRecord) IsActive() bool {
	return e.Active == nil || *e.Active
}

// Eligible reports whether the record belongs in a payroll roster.
// Records with an unreadable salary stay eligible so the failure is
// recorded on the batch instead of the employee silently disappearing.
func (e EmployeeRecord) Eligible() bool {
	if !e.IsActive() {
		return false
	}
	if !e.Salary.Valid {
		return true
	}
	return e.Salary.Decimal.IsPositive()
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// DeductionKind tags the origin of a deduction line.
type DeductionKind string

const (
	KindStatutory DeductionKind = "statutory"
	KindCustom    DeductionKind = "custom"
	KindAdvance   DeductionKind = "advance"
	KindLoan      DeductionKind = "loan"
)

// Valid reports whether k is a known kind.
func (k DeductionKind) Valid() bool {
	switch k {
	case KindStatutory, KindCustom, KindAdvance, KindLoan:
		return true
	}
	return false
}

// Deduction types added by the engine for one-off options.
const (
	DeductionAdvance = "Advance Payment"
	DeductionLoan    = "Loan Repayment"
)

// DeductionLine is a single deduction. Amount is never negative.
type DeductionLine struct {
	Type        string          `json:"type"`
	Kind        DeductionKind   `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Recurring   bool            `json:"recurring"`
	Description string          `json:"description,omitempty"`
}

// BenefitLine is a single resolved benefit.
type BenefitLine struct {
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Recurring bool            `json:"recurring"`
}

// =============================================================================
// PAYROLL ITEM
// =============================================================================

// PayrollItem is one employee's computed payroll for a period.
//
// NetSalary == GrossSalary + TotalBenefits - TotalDeductions holds exactly.
type PayrollItem struct {
	EmployeeID     string `json:"employee_id"`
	EmployeeName   string `json:"employee_name"`
	EmployeeNumber string `json:"employee_number,omitempty"`

	BasicSalary   decimal.Decimal `json:"basic_salary"`
	GrossSalary   decimal.Decimal `json:"gross_salary"`
	OvertimePay   decimal.Decimal `json:"overtime_pay"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	WorkingDays   int             `json:"working_days"`
	DaysWorked    int             `json:"days_worked"`

	Benefits   []BenefitLine   `json:"benefits"`
	Deductions []DeductionLine `json:"deductions"`

	TotalBenefits   decimal.Decimal `json:"total_benefits"`
	TaxableIncome   decimal.Decimal `json:"taxable_income"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	NetSalary       decimal.Decimal `json:"net_salary"`

	// Isolated statutory amounts for reporting.
	Tax          decimal.Decimal `json:"tax"`
	Pension      decimal.Decimal `json:"pension"`
	PensionTier1 decimal.Decimal `json:"pension_tier1"`
	PensionTier2 decimal.Decimal `json:"pension_tier2"`
	HealthLevy   decimal.Decimal `json:"health_levy"`
	HousingLevy  decimal.Decimal `json:"housing_levy"`

	Advance decimal.Decimal `json:"advance"`
	Loan    decimal.Decimal `json:"loan"`
}

// =============================================================================
// BATCH
// =============================================================================

// Totals are plain sums of the corresponding PayrollItem fields.
type Totals struct {
	Employees   int             `json:"employees"`
	BasicPay    decimal.Decimal `json:"basic_pay"`
	GrossPay    decimal.Decimal `json:"gross_pay"`
	Benefits    decimal.Decimal `json:"benefits"`
	Deductions  decimal.Decimal `json:"deductions"`
	NetPay      decimal.Decimal `json:"net_pay"`
	Tax         decimal.Decimal `json:"tax"`
	Pension     decimal.Decimal `json:"pension"`
	HealthLevy  decimal.Decimal `json:"health_levy"`
	HousingLevy decimal.Decimal `json:"housing_levy"`
	Overtime    decimal.Decimal `json:"overtime"`
	Advances    decimal.Decimal `json:"advances"`
	Loans       decimal.Decimal `json:"loans"`
}

// Add folds one item into the totals.
func (t *Totals) Add(item PayrollItem) {
	t.Employees++
	t.BasicPay = t.BasicPay.Add(item.BasicSalary)
	t.GrossPay = t.GrossPay.Add(item.GrossSalary)
	t.Benefits = t.Benefits.Add(item.TotalBenefits)
	t.Deductions = t.Deductions.Add(item.TotalDeductions)
	t.NetPay = t.NetPay.Add(item.NetSalary)
	t.Tax = t.Tax.Add(item.Tax)
	t.Pension = t.Pension.Add(item.Pension)
	t.HealthLevy = t.HealthLevy.Add(item.HealthLevy)
	t.HousingLevy = t.HousingLevy.Add(item.HousingLevy)
	t.Overtime = t.Overtime.Add(item.OvertimePay)
	t.Advances = t.Advances.Add(item.Advance)
	t.Loans = t.Loans.Add(item.Loan)
}

// ItemError records one employee whose computation failed.
type ItemError struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Message      string `json:"message"`
}

// Metadata carries non-fatal diagnostics from generation.
type Metadata struct {
	ProcessingTime time.Duration `json:"processing_time"`
	Errors         []ItemError   `json:"errors"`
	Warnings       []string      `json:"warnings"`
}

// Batch is the payroll record for one period.
type Batch struct {
	ID         string    `json:"id"`
	Period     Period    `json:"period"`
	PayPeriod  string    `json:"pay_period"`
	PayDate    time.Time `json:"pay_date"`
	CutoffDate time.Time `json:"cutoff_date"`
	Status     Status    `json:"status"`

	Items    []PayrollItem `json:"items"`
	Totals   Totals        `json:"totals"`
	Metadata Metadata      `json:"metadata"`

	GeneratedBy string `json:"generated_by"`
	Notes       string `json:"notes,omitempty"`

	FinalizedBy string     `json:"finalized_by,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	PaidBy      string     `json:"paid_by,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	History []StatusChange `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBatchID returns a unique batch id such as PAYROLL-2025-07-1A2B3C4D.
func NewBatchID(p Period) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PAYROLL-%04d-%02d-%s", p.Year, p.Month, suffix)
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate persisted state.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	c := *b
	if b.Items != nil {
		c.Items = make([]PayrollItem, len(b.Items))
		for i, item := range b.Items {
			item.Benefits = append([]BenefitLine(nil), item.Benefits...)
			item.Deductions = append([]DeductionLine(nil), item.Deductions...)
			c.Items[i] = item
		}
	}
	c.Metadata.Errors = append([]ItemError(nil), b.Metadata.Errors...)
	c.Metadata.Warnings = append([]string(nil), b.Metadata.Warnings...)
	c.History = append([]StatusChange(nil), b.History...)
	c.FinalizedAt = cloneTime(b.FinalizedAt)
	c.ApprovedAt = cloneTime(b.ApprovedAt)
	c.PaidAt = cloneTime(b.PaidAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
