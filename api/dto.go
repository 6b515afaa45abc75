/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract. Money is
  decimal.Decimal inside the engine and a plain JSON number here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Payroll:
    GenerateRequest, TransitionRequest
    BatchDTO, BatchHeaderDTO, BatchListDTO, PayrollItemDTO, SummaryDTO, TotalsDTO,
    ConflictDTO, StatisticsDTO

  Employees:
    EmployeeDTO (request bodies go through factory.ParseEmployee)

  Statutory:
    CalculateRequest, NetSalaryDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Payroll request validation lives in payroll.Validator; DTOs only convert.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/employee.go: Employee JSON schema
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

const dateLayout = "2006-01-02"

// =============================================================================
// PAYROLL REQUESTS
// =============================================================================

// GenerateRequest is the body of generate and preview.
type GenerateRequest struct {
	Month           int                           `json:"month"`
	Year            int                           `json:"year"`
	WorkingDays     int                           `json:"working_days,omitempty"`
	PayDate         string                        `json:"pay_date,omitempty"`    // YYYY-MM-DD
	CutoffDate      string                        `json:"cutoff_date,omitempty"` // YYYY-MM-DD
	GeneratedBy     string                        `json:"generated_by,omitempty"`
	Notes           string                        `json:"notes,omitempty"`
	EmployeeOptions map[string]EmployeeOptionsDTO `json:"employee_options,omitempty"`
}

// EmployeeOptionsDTO carries per-employee overrides. Amounts accept JSON
// numbers or strings and are decoded as decimals.
type EmployeeOptionsDTO struct {
	DaysWorked    *int             `json:"days_worked,omitempty"`
	OvertimeHours decimal.Decimal  `json:"overtime_hours"`
	OvertimeRate  *decimal.Decimal `json:"overtime_rate,omitempty"`
	Advance       decimal.Decimal  `json:"advance"`
	Loan          decimal.Decimal  `json:"loan"`
}

// ToDomain converts the request. Only date formats are checked here.
func (r GenerateRequest) ToDomain() (payroll.GenerateRequest, error) {
	req := payroll.GenerateRequest{
		Month:       r.Month,
		Year:        r.Year,
		WorkingDays: r.WorkingDays,
		GeneratedBy: r.GeneratedBy,
		Notes:       r.Notes,
	}
	if len(r.EmployeeOptions) > 0 {
		req.EmployeeOptions = make(map[string]payroll.EmployeeOptions, len(r.EmployeeOptions))
		for id, o := range r.EmployeeOptions {
			req.EmployeeOptions[id] = payroll.EmployeeOptions{
				DaysWorked:    o.DaysWorked,
				OvertimeHours: o.OvertimeHours,
				OvertimeRate:  o.OvertimeRate,
				Advance:       o.Advance,
				Loan:          o.Loan,
			}
		}
	}

	var violations []string
	var err error
	if req.PayDate, err = parseDate("pay_date", r.PayDate); err != nil {
		violations = append(violations, err.Error())
	}
	if req.CutoffDate, err = parseDate("cutoff_date", r.CutoffDate); err != nil {
		violations = append(violations, err.Error())
	}
	if len(violations) > 0 {
		return req, &payroll.ValidationError{Violations: violations}
	}
	return req, nil
}

// parseDate returns nil for an empty value.
func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be formatted as YYYY-MM-DD, got %q", field, value)
	}
	return &t, nil
}

// TransitionRequest is the body of a status change.
type TransitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// =============================================================================
// PAYROLL RESPONSES
// =============================================================================

// LineDTO is one benefit or deduction line.
type LineDTO struct {
	Type        string  `json:"type"`
	Kind        string  `json:"kind,omitempty"`
	Amount      float64 `json:"amount"`
	Recurring   bool    `json:"recurring"`
	Description string  `json:"description,omitempty"`
}

// PayrollItemDTO is one employee's payroll.
type PayrollItemDTO struct {
	EmployeeID      string    `json:"employee_id"`
	EmployeeName    string    `json:"employee_name"`
	EmployeeNumber  string    `json:"employee_number,omitempty"`
	BasicSalary     float64   `json:"basic_salary"`
	GrossSalary     float64   `json:"gross_salary"`
	OvertimeHours   float64   `json:"overtime_hours"`
	OvertimePay     float64   `json:"overtime_pay"`
	WorkingDays     int       `json:"working_days"`
	DaysWorked      int       `json:"days_worked"`
	Benefits        []LineDTO `json:"benefits"`
	Deductions      []LineDTO `json:"deductions"`
	TotalBenefits   float64   `json:"total_benefits"`
	TaxableIncome   float64   `json:"taxable_income"`
	TotalDeductions float64   `json:"total_deductions"`
	NetSalary       float64   `json:"net_salary"`
	Tax             float64   `json:"tax"`
	Pension         float64   `json:"pension"`
	PensionTier1    float64   `json:"pension_tier1"`
	PensionTier2    float64   `json:"pension_tier2"`
	HealthLevy      float64   `json:"health_levy"`
	HousingLevy     float64   `json:"housing_levy"`
	Advance         float64   `json:"advance"`
	Loan            float64   `json:"loan"`
}

// TotalsDTO mirrors payroll.Totals.
type TotalsDTO struct {
	Employees   int     `json:"employees"`
	BasicPay    float64 `json:"basic_pay"`
	GrossPay    float64 `json:"gross_pay"`
	Benefits    float64 `json:"benefits"`
	Deductions  float64 `json:"deductions"`
	NetPay      float64 `json:"net_pay"`
	Tax         float64 `json:"tax"`
	Pension     float64 `json:"pension"`
	HealthLevy  float64 `json:"health_levy"`
	HousingLevy float64 `json:"housing_levy"`
	Overtime    float64 `json:"overtime"`
	Advances    float64 `json:"advances"`
	Loans       float64 `json:"loans"`
}

// StatusChangeDTO is one history entry.
type StatusChangeDTO struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Actor string `json:"actor"`
	At    string `json:"at"`
	Notes string `json:"notes,omitempty"`
}

// ItemErrorDTO names an employee whose payroll failed.
type ItemErrorDTO struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Message      string `json:"message"`
}

// BatchHeaderDTO is a batch without its items.
type BatchHeaderDTO struct {
	ID          string            `json:"id"`
	Month       int               `json:"month"`
	Year        int               `json:"year"`
	PayPeriod   string            `json:"pay_period"`
	PayDate     string            `json:"pay_date"`
	CutoffDate  string            `json:"cutoff_date"`
	Status      string            `json:"status"`
	Totals      TotalsDTO         `json:"totals"`
	GeneratedBy string            `json:"generated_by"`
	Notes       string            `json:"notes,omitempty"`
	FinalizedBy string            `json:"finalized_by,omitempty"`
	FinalizedAt *string           `json:"finalized_at,omitempty"`
	ApprovedBy  string            `json:"approved_by,omitempty"`
	ApprovedAt  *string           `json:"approved_at,omitempty"`
	PaidBy      string            `json:"paid_by,omitempty"`
	PaidAt      *string           `json:"paid_at,omitempty"`
	CancelledBy string            `json:"cancelled_by,omitempty"`
	CancelledAt *string           `json:"cancelled_at,omitempty"`
	History     []StatusChangeDTO `json:"history"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

// BatchListDTO is one page of batch headers.
type BatchListDTO struct {
	Items []BatchHeaderDTO `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Pages int              `json:"pages"`
}

// BatchDTO is a full batch.
type BatchDTO struct {
	BatchHeaderDTO
	Items            []PayrollItemDTO `json:"items"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Errors           []ItemErrorDTO   `json:"errors"`
	Warnings         []string         `json:"warnings"`
}

// SummaryDTO is returned by generate.
type SummaryDTO struct {
	BatchID           string    `json:"batch_id,omitempty"`
	Month             int       `json:"month"`
	Year              int       `json:"year"`
	PayPeriod         string    `json:"pay_period"`
	Status            string    `json:"status"`
	Employees         int       `json:"employees"`
	Totals            TotalsDTO `json:"totals"`
	ProcessingTimeMs  int64     `json:"processing_time_ms"`
	ErrorCount        int       `json:"error_count"`
	WarningCount      int       `json:"warning_count"`
	AverageGross      float64   `json:"average_gross"`
	AverageNet        float64   `json:"average_net"`
	AverageDeductions float64   `json:"average_deductions"`
	DeductionRate     float64   `json:"deduction_rate"`
	BenefitRate       float64   `json:"benefit_rate"`
}

// ConflictDTO is the 409 body when the period already has a batch.
type ConflictDTO struct {
	Error      string `json:"error"`
	ExistingID string `json:"existing_id"`
	Status     string `json:"status"`
	Month      int    `json:"month"`
	Year       int    `json:"year"`
}

// StatisticsDTO is the year summary.
type StatisticsDTO struct {
	Year            int            `json:"year"`
	Batches         int            `json:"batches"`
	TotalEmployees  int            `json:"total_employees"`
	TotalGross      float64        `json:"total_gross"`
	TotalNet        float64        `json:"total_net"`
	TotalDeductions float64        `json:"total_deductions"`
	TotalTax        float64        `json:"total_tax"`
	ByStatus        map[string]int `json:"by_status"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	EmployeeNumber   string             `json:"employee_number,omitempty"`
	Salary           *float64           `json:"salary"`
	Active           bool               `json:"active"`
	Deductions       []LineDTO          `json:"deductions"`
	BenefitOverrides map[string]float64 `json:"benefit_overrides,omitempty"`
	ExcludedBenefits []string           `json:"excluded_benefits,omitempty"`
}

// =============================================================================
// STATUTORY
// =============================================================================

// CalculateRequest asks for the statutory view of an income.
type CalculateRequest struct {
	Gross decimal.Decimal `json:"gross"`
}

// BandDTO is one tax band slice.
type BandDTO struct {
	From    float64 `json:"from"`
	To      float64 `json:"to,omitempty"`
	Rate    float64 `json:"rate"`
	Taxable float64 `json:"taxable"`
	Tax     float64 `json:"tax"`
}

// NetSalaryDTO is the statutory calculator response.
type NetSalaryDTO struct {
	Gross           float64   `json:"gross"`
	Deductions      []LineDTO `json:"deductions"`
	TotalDeductions float64   `json:"total_deductions"`
	Net             float64   `json:"net"`
	Pension         struct {
		Tier1       float64 `json:"tier1"`
		Tier2       float64 `json:"tier2"`
		Employee    float64 `json:"employee"`
		Employer    float64 `json:"employer"`
		Total       float64 `json:"total"`
		Capped      bool    `json:"capped"`
		Description string  `json:"description"`
	} `json:"pension"`
	Tax struct {
		Bands       []BandDTO `json:"bands"`
		Gross       float64   `json:"gross"`
		Relief      float64   `json:"relief"`
		Net         float64   `json:"net"`
		Description string    `json:"description"`
	} `json:"tax"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Employees   int    `json:"employees"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Details    string   `json:"details,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func money(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toTotalsDTO(t payroll.Totals) TotalsDTO {
	return TotalsDTO{
		Employees:   t.Employees,
		BasicPay:    money(t.BasicPay),
		GrossPay:    money(t.GrossPay),
		Benefits:    money(t.Benefits),
		Deductions:  money(t.Deductions),
		NetPay:      money(t.NetPay),
		Tax:         money(t.Tax),
		Pension:     money(t.Pension),
		HealthLevy:  money(t.HealthLevy),
		HousingLevy: money(t.HousingLevy),
		Overtime:    money(t.Overtime),
		Advances:    money(t.Advances),
		Loans:       money(t.Loans),
	}
}

func toDeductionDTOs(lines []payroll.DeductionLine) []LineDTO {
	out := make([]LineDTO, len(lines))
	for i, l := range lines {
		out[i] = LineDTO{
			Type:        l.Type,
			Kind:        string(l.Kind),
			Amount:      money(l.Amount),
			Recurring:   l.Recurring,
			Description: l.Description,
		}
	}
	return out
}

func toBenefitDTOs(lines []payroll.BenefitLine) []LineDTO {
	out := make([]LineDTO, len(lines))
	for i, l := range lines {
		out[i] = LineDTO{Type: l.Type, Amount: money(l.Amount), Recurring: l.Recurring}
	}
	return out
}

func toItemDTO(item payroll.PayrollItem) PayrollItemDTO {
	return PayrollItemDTO{
		EmployeeID:      item.EmployeeID,
		EmployeeName:    item.EmployeeName,
		EmployeeNumber:  item.EmployeeNumber,
		BasicSalary:     money(item.BasicSalary),
		GrossSalary:     money(item.GrossSalary),
		OvertimeHours:   money(item.OvertimeHours),
		OvertimePay:     money(item.OvertimePay),
		WorkingDays:     item.WorkingDays,
		DaysWorked:      item.DaysWorked,
		Benefits:        toBenefitDTOs(item.Benefits),
		Deductions:      toDeductionDTOs(item.Deductions),
		TotalBenefits:   money(item.TotalBenefits),
		TaxableIncome:   money(item.TaxableIncome),
		TotalDeductions: money(item.TotalDeductions),
		NetSalary:       money(item.NetSalary),
		Tax:             money(item.Tax),
		Pension:         money(item.Pension),
		PensionTier1:    money(item.PensionTier1),
		PensionTier2:    money(item.PensionTier2),
		HealthLevy:      money(item.HealthLevy),
		HousingLevy:     money(item.HousingLevy),
		Advance:         money(item.Advance),
		Loan:            money(item.Loan),
	}
}

func toBatchListDTO(p *payroll.BatchPage) BatchListDTO {
	items := make([]BatchHeaderDTO, len(p.Items))
	for i := range p.Items {
		items[i] = toHeaderDTO(&p.Items[i])
	}
	return BatchListDTO{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit, Pages: p.Pages}
}

func toHeaderDTO(b *payroll.Batch) BatchHeaderDTO {
	history := make([]StatusChangeDTO, len(b.History))
	for i, c := range b.History {
		history[i] = StatusChangeDTO{
			From:  string(c.From),
			To:    string(c.To),
			Actor: c.Actor,
			At:    c.At.UTC().Format(time.RFC3339),
			Notes: c.Notes,
		}
	}
	dto := BatchHeaderDTO{
		ID:          b.ID,
		Month:       b.Period.Month,
		Year:        b.Period.Year,
		PayPeriod:   b.PayPeriod,
		PayDate:     b.PayDate.Format(dateLayout),
		CutoffDate:  b.CutoffDate.Format(dateLayout),
		Status:      string(b.Status),
		Totals:      toTotalsDTO(b.Totals),
		GeneratedBy: b.GeneratedBy,
		Notes:       b.Notes,
		FinalizedBy: b.FinalizedBy,
		FinalizedAt: timeString(b.FinalizedAt),
		ApprovedBy:  b.ApprovedBy,
		ApprovedAt:  timeString(b.ApprovedAt),
		PaidBy:      b.PaidBy,
		PaidAt:      timeString(b.PaidAt),
		CancelledBy: b.CancelledBy,
		CancelledAt: timeString(b.CancelledAt),
		History:     history,
	}
	if !b.CreatedAt.IsZero() {
		dto.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !b.UpdatedAt.IsZero() {
		dto.UpdatedAt = b.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toBatchDTO(b *payroll.Batch) BatchDTO {
	items := make([]PayrollItemDTO, len(b.Items))
	for i, item := range b.Items {
		items[i] = toItemDTO(item)
	}
	errs := make([]ItemErrorDTO, len(b.Metadata.Errors))
	for i, e := range b.Metadata.Errors {
		errs[i] = ItemErrorDTO{EmployeeID: e.EmployeeID, EmployeeName: e.EmployeeName, Message: e.Message}
	}
	warnings := b.Metadata.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return BatchDTO{
		BatchHeaderDTO:   toHeaderDTO(b),
		Items:            items,
		ProcessingTimeMs: b.Metadata.ProcessingTime.Milliseconds(),
		Errors:           errs,
		Warnings:         warnings,
	}
}

func toSummaryDTO(s payroll.Summary) SummaryDTO {
	return SummaryDTO{
		BatchID:           s.BatchID,
		Month:             s.Period.Month,
		Year:              s.Period.Year,
		PayPeriod:         s.PayPeriod,
		Status:            string(s.Status),
		Employees:         s.Employees,
		Totals:            toTotalsDTO(s.Totals),
		ProcessingTimeMs:  s.ProcessingTime.Milliseconds(),
		ErrorCount:        s.ErrorCount,
		WarningCount:      s.WarningCount,
		AverageGross:      money(s.AverageGross),
		AverageNet:        money(s.AverageNet),
		AverageDeductions: money(s.AverageDeductions),
		DeductionRate:     money(s.DeductionRate),
		BenefitRate:       money(s.BenefitRate),
	}
}

func toStatisticsDTO(s payroll.YearStatistics) StatisticsDTO {
	byStatus := make(map[string]int, len(s.ByStatus))
	for status, n := range s.ByStatus {
		byStatus[string(status)] = n
	}
	return StatisticsDTO{
		Year:            s.Year,
		Batches:         s.Batches,
		TotalEmployees:  s.TotalEmployees,
		TotalGross:      money(s.TotalGross),
		TotalNet:        money(s.TotalNet),
		TotalDeductions: money(s.TotalDeductions),
		TotalTax:        money(s.TotalTax),
		ByStatus:        byStatus,
	}
}

func toEmployeeDTO(e payroll.EmployeeRecord) EmployeeDTO {
	dto := EmployeeDTO{
		ID:               e.ID,
		Name:             e.Name,
		EmployeeNumber:   e.Number,
		Active:           e.IsActive(),
		Deductions:       toDeductionDTOs(e.Deductions),
		ExcludedBenefits: e.ExcludedBenefits,
	}
	if e.Salary.Valid {
		v := money(e.Salary.Decimal)
		dto.Salary = &v
	}
	if len(e.BenefitOverrides) > 0 {
		dto.BenefitOverrides = make(map[string]float64, len(e.BenefitOverrides))
		for name, amount := range e.BenefitOverrides {
			dto.BenefitOverrides[name] = money(amount)
		}
	}
	return dto
}

func toNetSalaryDTO(n statutory.NetSalary) NetSalaryDTO {
	dto := NetSalaryDTO{
		Gross:           money(n.Gross),
		Deductions:      toDeductionDTOs(n.Deductions),
		TotalDeductions: money(n.Total),
		Net:             money(n.Net),
	}
	dto.Pension.Tier1 = money(n.Pension.Tier1)
	dto.Pension.Tier2 = money(n.Pension.Tier2)
	dto.Pension.Employee = money(n.Pension.Employee)
	dto.Pension.Employer = money(n.Pension.Employer)
	dto.Pension.Total = money(n.Pension.Total)
	dto.Pension.Capped = n.Pension.Capped
	dto.Pension.Description = n.Pension.Description()

	dto.Tax.Bands = make([]BandDTO, len(n.Tax.Bands))
	for i, b := range n.Tax.Bands {
		dto.Tax.Bands[i] = BandDTO{
			From:    money(b.From),
			To:      money(b.To),
			Rate:    money(b.Rate),
			Taxable: money(b.Taxable),
			Tax:     money(b.Tax),
		}
	}
	dto.Tax.Gross = money(n.Tax.Gross)
	dto.Tax.Relief = money(n.Tax.Relief)
	dto.Tax.Net = money(n.Tax.Net)
	dto.Tax.Description = n.Tax.Description()
	return dto
}
