package payroll

import "github.com/shopspring/decimal"

// RoundUnits rounds to whole currency units, half away from zero.
// Statutory and benefit lines use this.
func RoundUnits(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SumDeductions adds line amounts. Lines are expected to be rounded already.
func SumDeductions(lines []DeductionLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// SumBenefits adds line amounts. Lines are expected to be rounded already.
func SumBenefits(lines []BenefitLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Ratio returns part/whole, or zero when whole is zero.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole)
}
