/*
Package statutory computes the deductions mandated by law.

PURPOSE:
  Implements payroll.StatutoryCalculator: from taxable income to an ordered
  list of deduction lines, health levy, pension, housing levy and income
  tax, in that order.

FORMULAS (monthly, default rates):
  Health levy   round(income * 2.75%)
  Pension       tier 1 = min(income, 8000) * 6%
                tier 2 = (min(income, 72000) - 8000) * 6% when income > 8000
                total  = min(tier1 + tier2, 4320)
  Housing levy  round(income * 1.5%)
  Income tax    0 up to 24000, then 25% to 32333, 30% to 500000,
                32.5% to 800000, 35% above; minus 2400 relief, floored at 0

ROUNDING:
  Every line is rounded to whole currency units independently, half away
  from zero. Lines are never negative.

USAGE:
  calc := statutory.New()
  result := calc.Calculate(decimal.NewFromInt(100000))
  // result.Lines: SHIF 2750, NSSF 4320, Housing Levy 1500, PAYE 19983

SEE ALSO:
  - breakdown.go: Pension, tax and net salary breakdowns
  - payroll/compute.go: Caller
*/
package statutory

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Statutory deduction types. Callers may not supply these as custom deductions.
const (
	TypeHealthLevy  = "SHIF"
	TypePension     = "NSSF"
	TypeHousingLevy = "Housing Levy"
	TypeTax         = "PAYE"
)

// Types lists the statutory types in output order.
var Types = []string{TypeHealthLevy, TypePension, TypeHousingLevy, TypeTax}

// =============================================================================
// RATES
// =============================================================================

// Band is one progressive tax band. A zero UpTo means unbounded.
type Band struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// Rates parameterizes the calculator.
type Rates struct {
	HealthRate  decimal.Decimal
	HousingRate decimal.Decimal

	PensionRate       decimal.Decimal
	PensionLowerLimit decimal.Decimal
	PensionUpperLimit decimal.Decimal
	PensionCap        decimal.Decimal

	// TaxThreshold is the income at or below which no tax is due.
	// Bands apply cumulatively above it.
	TaxThreshold   decimal.Decimal
	TaxBands       []Band
	PersonalRelief decimal.Decimal
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultRates returns the current monthly rates.
func DefaultRates() Rates {
	return Rates{
		HealthRate:        dec("0.0275"),
		HousingRate:       dec("0.015"),
		PensionRate:       dec("0.06"),
		PensionLowerLimit: dec("8000"),
		PensionUpperLimit: dec("72000"),
		PensionCap:        dec("4320"),
		TaxThreshold:      dec("24000"),
		TaxBands: []Band{
			{UpTo: dec("32333"), Rate: dec("0.25")},
			{UpTo: dec("500000"), Rate: dec("0.30")},
			{UpTo: dec("800000"), Rate: dec("0.325")},
			{Rate: dec("0.35")},
		},
		PersonalRelief: dec("2400"),
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes statutory deductions. Safe for concurrent use.
type Calculator struct {
	rates    Rates
	reserved map[string]bool
}

// New returns a calculator with DefaultRates.
func New() *Calculator {
	return NewWithRates(DefaultRates())
}

// NewWithRates returns a calculator with custom rates.
func NewWithRates(r Rates) *Calculator {
	reserved := make(map[string]bool, len(Types))
	for _, t := range Types {
		reserved[t] = true
	}
	return &Calculator{rates: r, reserved: reserved}
}

// Rates returns the calculator's rates.
func (c *Calculator) Rates() Rates {
	return c.rates
}

// IsStatutory reports whether t is a reserved deduction type.
func (c *Calculator) IsStatutory(t string) bool {
	return c.reserved[t]
}

// Calculate returns the statutory lines for income. Income <= 0 yields an
// empty result.
func (c *Calculator) Calculate(income decimal.Decimal) payroll.StatutoryResult {
	if !income.IsPositive() {
		return payroll.StatutoryResult{Lines: []payroll.DeductionLine{}}
	}

	health := payroll.RoundUnits(income.Mul(c.rates.HealthRate))
	pension := c.Pension(income)
	housing := payroll.RoundUnits(income.Mul(c.rates.HousingRate))
	tax := c.Tax(income)

	lines := []payroll.DeductionLine{
		{
			Type:        TypeHealthLevy,
			Kind:        payroll.KindStatutory,
			Amount:      health,
			Recurring:   true,
			Description: "Social Health Insurance Fund (" + percent(c.rates.HealthRate) + " of gross)",
		},
		{
			Type:        TypePension,
			Kind:        payroll.KindStatutory,
			Amount:      pension.Employee,
			Recurring:   true,
			Description: pension.Description(),
		},
		{
			Type:        TypeHousingLevy,
			Kind:        payroll.KindStatutory,
			Amount:      housing,
			Recurring:   true,
			Description: "Affordable Housing Levy (" + percent(c.rates.HousingRate) + " of gross)",
		},
		{
			Type:        TypeTax,
			Kind:        payroll.KindStatutory,
			Amount:      tax.Net,
			Recurring:   true,
			Description: tax.Description(),
		},
	}

	return payroll.StatutoryResult{
		Lines:        lines,
		Tax:          tax.Net,
		Pension:      pension.Employee,
		PensionTier1: pension.Tier1,
		PensionTier2: pension.Tier2,
		HealthLevy:   health,
		HousingLevy:  housing,
	}
}

// Total returns the sum of all statutory lines for income.
func (c *Calculator) Total(income decimal.Decimal) decimal.Decimal {
	return payroll.SumDeductions(c.Calculate(income).Lines)
}
