/*
compute.go - Per-employee payroll computation

PURPOSE:
  Turns one EmployeeRecord plus period options into a PayrollItem. This is
  the only place pay is computed: Generate and Preview both call it, so a
  preview always matches what a generate would persist.

STEPS (order is fixed):
  1. overtimePay   = basic / workingDays / 8 * hours * rate
  2. adjustedGross = basic * daysWorked / workingDays + overtimePay
  3. benefits      = resolver(adjustedGross, overrides, exclusions)
  4. taxable       = adjustedGross + totalBenefits, statutory lines from it
  5. custom lines  = caller deductions minus statutory types, plus advance/loan
  6. totals and net = adjustedGross + totalBenefits - totalDeductions

PLUGGABLE RULES:
  StatutoryCalculator and BenefitResolver are interfaces. The statutory
  and benefits packages provide the production implementations.
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE INTERFACES
// =============================================================================

// StatutoryCalculator computes mandatory deductions from taxable income.
type StatutoryCalculator interface {
	// Calculate returns the ordered statutory lines. Income <= 0 yields an
	// empty result.
	Calculate(taxableIncome decimal.Decimal) StatutoryResult

	// IsStatutory reports whether a deduction type is reserved.
	IsStatutory(deductionType string) bool
}

// StatutoryResult holds the statutory lines and the isolated amounts.
type StatutoryResult struct {
	Lines        []DeductionLine
	Tax          decimal.Decimal
	Pension      decimal.Decimal
	PensionTier1 decimal.Decimal
	PensionTier2 decimal.Decimal
	HealthLevy   decimal.Decimal
	HousingLevy  decimal.Decimal
}

// BenefitResolver resolves the benefit lines for an employee.
type BenefitResolver interface {
	Resolve(gross decimal.Decimal, overrides map[string]decimal.Decimal, excluded []string) []BenefitLine
}

// =============================================================================
// OPTIONS
// =============================================================================

// DefaultOvertimeRate is the overtime multiplier when none is given.
var DefaultOvertimeRate = decimal.NewFromFloat(1.5)

var hoursPerDay = decimal.NewFromInt(8)

// ComputeOptions are the resolved inputs for one employee.
type ComputeOptions struct {
	WorkingDays   int
	DaysWorked    int
	OvertimeHours decimal.Decimal
	OvertimeRate  decimal.Decimal
	Advance       decimal.Decimal
	Loan          decimal.Decimal
}

// DefaultComputeOptions returns options for a full month with no extras.
func DefaultComputeOptions(workingDays int) ComputeOptions {
	return ComputeOptions{
		WorkingDays:  workingDays,
		DaysWorked:   workingDays,
		OvertimeRate: DefaultOvertimeRate,
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes a PayrollItem. It is stateless and safe for
// concurrent use when its rules are.
type Calculator struct {
	Statutory StatutoryCalculator
	Benefits  BenefitResolver
}

// NewCalculator creates a calculator from the two rule sets.
func NewCalculator(statutory StatutoryCalculator, benefits BenefitResolver) *Calculator {
	return &Calculator{Statutory: statutory, Benefits: benefits}
}

// Compute returns emp's payroll for period. A *ComputationError is
// returned when the record cannot be computed.
func (c *Calculator) Compute(emp EmployeeRecord, period Period, opts ComputeOptions) (PayrollItem, error) {
	if err := checkRecord(emp, opts); err != nil {
		return PayrollItem{}, err
	}

	basic := emp.Salary.Decimal
	workingDays := decimal.NewFromInt(int64(opts.WorkingDays))
	daysWorked := decimal.NewFromInt(int64(opts.DaysWorked))

	// Step 1-2: attendance and overtime.
	overtimePay := decimal.Zero
	if opts.OvertimeHours.IsPositive() {
		overtimePay = RoundCents(basic.Mul(opts.OvertimeHours).Mul(opts.OvertimeRate).
			Div(workingDays.Mul(hoursPerDay)))
	}
	attendancePay := basic
	if opts.DaysWorked != opts.WorkingDays {
		attendancePay = RoundCents(basic.Mul(daysWorked).Div(workingDays))
	}
	gross := attendancePay.Add(overtimePay)

	// Step 3: benefits against adjusted gross.
	var benefits []BenefitLine
	if c.Benefits != nil {
		benefits = c.Benefits.Resolve(gross, emp.BenefitOverrides, emp.ExcludedBenefits)
	}
	if benefits == nil {
		benefits = []BenefitLine{}
	}
	totalBenefits := SumBenefits(benefits)

	// Step 4: statutory deductions against taxable income.
	taxable := gross.Add(totalBenefits)
	statutory := c.Statutory.Calculate(taxable)

	// Step 5: merge deductions.
	deductions := make([]DeductionLine, 0, len(statutory.Lines)+len(emp.Deductions)+2)
	deductions = append(deductions, statutory.Lines...)
	custom, err := c.customDeductions(emp)
	if err != nil {
		return PayrollItem{}, err
	}
	deductions = append(deductions, custom...)

	advance := RoundCents(opts.Advance)
	if advance.IsPositive() {
		deductions = append(deductions, DeductionLine{
			Type:        DeductionAdvance,
			Kind:        KindAdvance,
			Amount:      advance,
			Recurring:   false,
			Description: fmt.Sprintf("Salary advance for %s", period.Label()),
		})
	}
	loan := RoundCents(opts.Loan)
	if loan.IsPositive() {
		deductions = append(deductions, DeductionLine{
			Type:        DeductionLoan,
			Kind:        KindLoan,
			Amount:      loan,
			Recurring:   true,
			Description: fmt.Sprintf("Loan repayment for %s", period.Label()),
		})
	}
	totalDeductions := SumDeductions(deductions)

	// Step 6: net.
	net := gross.Add(totalBenefits).Sub(totalDeductions)

	return PayrollItem{
		EmployeeID:      emp.ID,
		EmployeeName:    emp.Name,
		EmployeeNumber:  emp.Number,
		BasicSalary:     basic,
		GrossSalary:     gross,
		OvertimePay:     overtimePay,
		OvertimeHours:   opts.OvertimeHours,
		WorkingDays:     opts.WorkingDays,
		DaysWorked:      opts.DaysWorked,
		Benefits:        benefits,
		Deductions:      deductions,
		TotalBenefits:   totalBenefits,
		TaxableIncome:   taxable,
		TotalDeductions: totalDeductions,
		NetSalary:       net,
		Tax:             statutory.Tax,
		Pension:         statutory.Pension,
		PensionTier1:    statutory.PensionTier1,
		PensionTier2:    statutory.PensionTier2,
		HealthLevy:      statutory.HealthLevy,
		HousingLevy:     statutory.HousingLevy,
		Advance:         advance,
		Loan:            loan,
	}, nil
}

// customDeductions drops caller lines that collide with statutory types.
func (c *Calculator) customDeductions(emp EmployeeRecord) ([]DeductionLine, error) {
	var lines []DeductionLine
	for _, d := range emp.Deductions {
		if d.Kind == KindStatutory || c.Statutory.IsStatutory(d.Type) {
			continue
		}
		if d.Amount.IsNegative() {
			return nil, &ComputationError{
				EmployeeID:   emp.ID,
				EmployeeName: emp.Name,
				Field:        "deduction " + d.Type,
				Reason:       "has a negative amount",
			}
		}
		d.Amount = RoundCents(d.Amount)
		if d.Kind == "" {
			d.Kind = KindCustom
		}
		lines = append(lines, d)
	}
	return lines, nil
}

func checkRecord(emp EmployeeRecord, opts ComputeOptions) error {
	fail := func(field, reason string) error {
		return &ComputationError{EmployeeID: emp.ID, EmployeeName: emp.Name, Field: field, Reason: reason}
	}
	switch {
	case emp.ID == "":
		return fail("id", "is missing")
	case emp.LoadError != "":
		return fail("record", emp.LoadError)
	case !emp.Salary.Valid:
		return fail("salary", "is missing or non-numeric")
	case emp.Salary.Decimal.IsNegative():
		return fail("salary", "is negative")
	case opts.WorkingDays <= 0:
		return fail("working days", "must be positive")
	case opts.DaysWorked < 0 || opts.DaysWorked > opts.WorkingDays:
		return fail("days worked", fmt.Sprintf("must be between 0 and %d", opts.WorkingDays))
	case opts.OvertimeHours.IsNegative():
		return fail("overtime hours", "must not be negative")
	case opts.OvertimeRate.IsNegative():
		return fail("overtime rate", "must not be negative")
	case opts.Advance.IsNegative():
		return fail("advance", "must not be negative")
	case opts.Loan.IsNegative():
		return fail("loan", "must not be negative")
	}
	return nil
}
