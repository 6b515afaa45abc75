package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the caller-facing digest of a batch.
type Summary struct {
	BatchID        string        `json:"batch_id,omitempty"`
	Period         Period        `json:"period"`
	PayPeriod      string        `json:"pay_period"`
	Status         Status        `json:"status"`
	Employees      int           `json:"employees"`
	Totals         Totals        `json:"totals"`
	ProcessingTime time.Duration `json:"processing_time"`
	ErrorCount     int           `json:"error_count"`
	WarningCount   int           `json:"warning_count"`

	AverageGross      decimal.Decimal `json:"average_gross"`
	AverageNet        decimal.Decimal `json:"average_net"`
	AverageDeductions decimal.Decimal `json:"average_deductions"`
	DeductionRate     decimal.Decimal `json:"deduction_rate"` // deductions / gross
	BenefitRate       decimal.Decimal `json:"benefit_rate"`   // benefits / gross
}

// Summary digests the batch. Averages and rates are rounded to cents and
// four places respectively.
func (b *Batch) Summary() Summary {
	n := decimal.NewFromInt(int64(b.Totals.Employees))
	avg := func(d decimal.Decimal) decimal.Decimal {
		return RoundCents(Ratio(d, n))
	}
	return Summary{
		BatchID:           b.ID,
		Period:            b.Period,
		PayPeriod:         b.PayPeriod,
		Status:            b.Status,
		Employees:         b.Totals.Employees,
		Totals:            b.Totals,
		ProcessingTime:    b.Metadata.ProcessingTime,
		ErrorCount:        len(b.Metadata.Errors),
		WarningCount:      len(b.Metadata.Warnings),
		AverageGross:      avg(b.Totals.GrossPay),
		AverageNet:        avg(b.Totals.NetPay),
		AverageDeductions: avg(b.Totals.Deductions),
		DeductionRate:     Ratio(b.Totals.Deductions, b.Totals.GrossPay).Round(4),
		BenefitRate:       Ratio(b.Totals.Benefits, b.Totals.GrossPay).Round(4),
	}
}

// YearStatistics aggregates a year's batches. Cancelled batches count
// toward ByStatus only.
type YearStatistics struct {
	Year            int             `json:"year"`
	Batches         int             `json:"batches"`
	TotalEmployees  int             `json:"total_employees"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	TotalNet        decimal.Decimal `json:"total_net"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	ByStatus        map[Status]int  `json:"by_status"`
}

// ComputeYearStatistics folds batch headers into statistics for year.
func ComputeYearStatistics(year int, batches []Batch) YearStatistics {
	stats := YearStatistics{Year: year, ByStatus: make(map[Status]int)}
	for _, b := range batches {
		if b.Period.Year != year {
			continue
		}
		stats.ByStatus[b.Status]++
		if b.Status == StatusCancelled {
			continue
		}
		stats.Batches++
		stats.TotalEmployees += b.Totals.Employees
		stats.TotalGross = stats.TotalGross.Add(b.Totals.GrossPay)
		stats.TotalNet = stats.TotalNet.Add(b.Totals.NetPay)
		stats.TotalDeductions = stats.TotalDeductions.Add(b.Totals.Deductions)
		stats.TotalTax = stats.TotalTax.Add(b.Totals.Tax)
	}
	return stats
}
