package statutory

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PENSION
// =============================================================================

// PensionBreakdown details the tiered pension contribution.
type PensionBreakdown struct {
	Income    decimal.Decimal `json:"income"`
	Tier1Base decimal.Decimal `json:"tier1_base"`
	Tier2Base decimal.Decimal `json:"tier2_base"`
	Tier1     decimal.Decimal `json:"tier1"`
	Tier2     decimal.Decimal `json:"tier2"`
	Employee  decimal.Decimal `json:"employee"`
	Employer  decimal.Decimal `json:"employer"`
	Total     decimal.Decimal `json:"total"`
	Cap       decimal.Decimal `json:"cap"`
	Capped    bool            `json:"capped"`
}

// Pension computes the employee contribution and the matching employer
// share. The employee amount never exceeds the cap.
func (c *Calculator) Pension(income decimal.Decimal) PensionBreakdown {
	r := c.rates
	b := PensionBreakdown{Income: income, Cap: r.PensionCap}
	if !income.IsPositive() {
		return b
	}

	b.Tier1Base = decimal.Min(income, r.PensionLowerLimit)
	tier1 := b.Tier1Base.Mul(r.PensionRate)
	tier2 := decimal.Zero
	if income.GreaterThan(r.PensionLowerLimit) {
		b.Tier2Base = decimal.Min(income, r.PensionUpperLimit).Sub(r.PensionLowerLimit)
		tier2 = b.Tier2Base.Mul(r.PensionRate)
	}

	uncapped := tier1.Add(tier2)
	b.Capped = uncapped.GreaterThan(r.PensionCap)
	b.Tier1 = payroll.RoundUnits(tier1)
	b.Tier2 = payroll.RoundUnits(tier2)
	b.Employee = payroll.RoundUnits(decimal.Min(uncapped, r.PensionCap))
	b.Employer = b.Employee
	b.Total = b.Employee.Add(b.Employer)
	return b
}

// Description renders the breakdown for a payslip line.
func (b PensionBreakdown) Description() string {
	if !b.Income.IsPositive() {
		return "No pension contribution"
	}
	desc := "Pension Tier I on " + units(b.Tier1Base)
	if b.Tier2Base.IsPositive() {
		desc += " + Tier II on " + units(b.Tier2Base)
	}
	if b.Capped {
		desc += " (capped at " + units(b.Cap) + ")"
	}
	return desc
}

// =============================================================================
// INCOME TAX
// =============================================================================

// BandSlice is the part of income falling into one tax band.
type BandSlice struct {
	From    decimal.Decimal `json:"from"`
	To      decimal.Decimal `json:"to"` // zero when unbounded
	Rate    decimal.Decimal `json:"rate"`
	Taxable decimal.Decimal `json:"taxable"`
	Tax     decimal.Decimal `json:"tax"`
}

// TaxBreakdown details the progressive income tax.
type TaxBreakdown struct {
	Income decimal.Decimal `json:"income"`
	Bands  []BandSlice     `json:"bands"`
	Gross  decimal.Decimal `json:"gross"`
	Relief decimal.Decimal `json:"relief"`
	Net    decimal.Decimal `json:"net"`
}

// Tax computes income tax after relief. Income at or below the threshold
// yields zero.
func (c *Calculator) Tax(income decimal.Decimal) TaxBreakdown {
	r := c.rates
	b := TaxBreakdown{Income: income, Bands: []BandSlice{}}
	if !income.GreaterThan(r.TaxThreshold) {
		return b
	}

	gross := decimal.Zero
	lower := r.TaxThreshold
	for _, band := range r.TaxBands {
		if !income.GreaterThan(lower) {
			break
		}
		top := income
		if !band.UpTo.IsZero() {
			top = decimal.Min(income, band.UpTo)
		}
		taxable := top.Sub(lower)
		tax := taxable.Mul(band.Rate)
		gross = gross.Add(tax)
		b.Bands = append(b.Bands, BandSlice{
			From:    lower,
			To:      band.UpTo,
			Rate:    band.Rate,
			Taxable: taxable,
			Tax:     tax,
		})
		if band.UpTo.IsZero() {
			break
		}
		lower = band.UpTo
	}

	b.Gross = payroll.RoundUnits(gross)
	if gross.IsPositive() {
		b.Relief = r.PersonalRelief
	}
	b.Net = payroll.RoundUnits(decimal.Max(gross.Sub(r.PersonalRelief), decimal.Zero))
	return b
}

// Description renders the breakdown for a payslip line.
func (b TaxBreakdown) Description() string {
	if len(b.Bands) == 0 {
		return "No income tax (income at or below threshold)"
	}
	top := b.Bands[len(b.Bands)-1]
	desc := fmt.Sprintf("Progressive income tax up to %s", percent(top.Rate))
	if b.Relief.IsPositive() {
		desc += " (less " + units(b.Relief) + " personal relief)"
	}
	return desc
}

// =============================================================================
// NET SALARY
// =============================================================================

// NetSalary is the statutory view of a gross salary.
type NetSalary struct {
	Gross      decimal.Decimal         `json:"gross"`
	Deductions []payroll.DeductionLine `json:"deductions"`
	Total      decimal.Decimal         `json:"total_deductions"`
	Net        decimal.Decimal         `json:"net"`
	Pension    PensionBreakdown        `json:"pension"`
	Tax        TaxBreakdown            `json:"tax"`
}

// NetSalary computes gross minus statutory deductions, with breakdowns.
func (c *Calculator) NetSalary(gross decimal.Decimal) NetSalary {
	result := c.Calculate(gross)
	total := payroll.SumDeductions(result.Lines)
	return NetSalary{
		Gross:      gross,
		Deductions: result.Lines,
		Total:      total,
		Net:        gross.Sub(total),
		Pension:    c.Pension(gross),
		Tax:        c.Tax(gross),
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String() + "%"
}

// units formats whole currency units with thousands separators.
func units(d decimal.Decimal) string {
	s := d.Round(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
