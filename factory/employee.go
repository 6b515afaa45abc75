/*
Package factory converts JSON employee definitions into payroll records.

PURPOSE:
  The boundary between loosely typed input (API bodies, scenario files,
  directory imports) and payroll.EmployeeRecord. Ambiguous input is
  rejected here instead of being normalized deep inside computation.

JSON SCHEMA:
  {
    "id": "emp-001",
    "name": "Grace Wanjiku",
    "employee_number": "KE-0001",
    "salary": 85000,                     // number or numeric string
    "active": true,                      // optional, absent = active
    "deductions": [
      {"type": "Sacco", "amount": 2500, "recurring": true}
    ],
    "benefit_overrides": {"Transport Allowance": 4500},
    "excluded_benefits": ["Phone Allowance"]
  }

REJECTED:
  - deductions given as bare strings or any non-object element
  - deductions without a type, with a negative amount, or with a
    statutory type
  - missing, non-numeric or negative salary
  - overrides or exclusions naming unknown benefit types

SEE ALSO:
  - payroll/types.go: EmployeeRecord
  - api/scenarios.go: Demo rosters built from this schema
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// EmployeeJSON is the JSON representation of an employee.
type EmployeeJSON struct {
	ID               string                     `json:"id"`
	Name             string                     `json:"name"`
	EmployeeNumber   string                     `json:"employee_number,omitempty"`
	Salary           json.RawMessage            `json:"salary"`
	Active           *bool                      `json:"active,omitempty"`
	Deductions       []json.RawMessage          `json:"deductions,omitempty"`
	BenefitOverrides map[string]decimal.Decimal `json:"benefit_overrides,omitempty"`
	ExcludedBenefits []string                   `json:"excluded_benefits,omitempty"`
}

// DeductionJSON is one custom deduction.
type DeductionJSON struct {
	Type        string           `json:"type"`
	Amount      *decimal.Decimal `json:"amount"`
	Recurring   bool             `json:"recurring"`
	Description string           `json:"description,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// EmployeeFactory parses employee JSON.
type EmployeeFactory struct {
	// IsStatutory rejects custom deductions with reserved types. Optional.
	IsStatutory func(deductionType string) bool
	// KnownBenefit rejects overrides and exclusions of unknown types. Optional.
	KnownBenefit func(name string) bool
}

// NewEmployeeFactory creates a factory. Either check may be nil.
func NewEmployeeFactory(isStatutory, knownBenefit func(string) bool) *EmployeeFactory {
	return &EmployeeFactory{IsStatutory: isStatutory, KnownBenefit: knownBenefit}
}

// ParseEmployee decodes one employee object.
func (f *EmployeeFactory) ParseEmployee(data []byte) (payroll.EmployeeRecord, error) {
	var ej EmployeeJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return payroll.EmployeeRecord{}, fmt.Errorf("invalid employee JSON: %w", err)
	}
	return f.FromJSON(ej)
}

// ParseEmployees decodes a JSON array of employees. Every problem in every
// element is reported.
func (f *EmployeeFactory) ParseEmployees(data []byte) ([]payroll.EmployeeRecord, error) {
	var raw []EmployeeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid employee list JSON: %w", err)
	}

	records := make([]payroll.EmployeeRecord, 0, len(raw))
	var violations []string
	for i, ej := range raw {
		rec, err := f.FromJSON(ej)
		if err != nil {
			violations = append(violations, prefixed(fmt.Sprintf("[%d]", i), err)...)
			continue
		}
		records = append(records, rec)
	}
	if len(violations) > 0 {
		return nil, &payroll.ValidationError{Violations: violations}
	}
	return records, nil
}

// FromJSON validates and converts a decoded employee.
func (f *EmployeeFactory) FromJSON(ej EmployeeJSON) (payroll.EmployeeRecord, error) {
	var violations []string
	add := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(ej.ID) == "" {
		add("id is required")
	}
	if strings.TrimSpace(ej.Name) == "" {
		add("name is required")
	}

	salary, err := parseAmount(ej.Salary)
	switch {
	case err != nil:
		add("salary %v", err)
	case salary.IsNegative():
		add("salary must not be negative")
	}

	deductions := make([]payroll.DeductionLine, 0, len(ej.Deductions))
	for i, raw := range ej.Deductions {
		line, err := f.parseDeduction(raw)
		if err != nil {
			add("deductions[%d] %v", i, err)
			continue
		}
		deductions = append(deductions, line)
	}

	for name, amount := range ej.BenefitOverrides {
		if f.KnownBenefit != nil && !f.KnownBenefit(name) {
			add("benefit_overrides: unknown benefit %q", name)
		}
		if amount.IsNegative() {
			add("benefit_overrides[%s] must not be negative", name)
		}
	}
	for _, name := range ej.ExcludedBenefits {
		if f.KnownBenefit != nil && !f.KnownBenefit(name) {
			add("excluded_benefits: unknown benefit %q", name)
		}
	}

	if len(violations) > 0 {
		return payroll.EmployeeRecord{}, &payroll.ValidationError{Violations: violations}
	}

	return payroll.EmployeeRecord{
		ID:               strings.TrimSpace(ej.ID),
		Name:             strings.TrimSpace(ej.Name),
		Number:           ej.EmployeeNumber,
		Salary:           decimal.NewNullDecimal(salary),
		Deductions:       deductions,
		BenefitOverrides: ej.BenefitOverrides,
		ExcludedBenefits: ej.ExcludedBenefits,
		Active:           ej.Active,
	}, nil
}

// ToJSON converts a record back to its JSON form.
func ToJSON(r payroll.EmployeeRecord) EmployeeJSON {
	ej := EmployeeJSON{
		ID:               r.ID,
		Name:             r.Name,
		EmployeeNumber:   r.Number,
		Salary:           json.RawMessage("null"),
		Active:           r.Active,
		BenefitOverrides: r.BenefitOverrides,
		ExcludedBenefits: r.ExcludedBenefits,
	}
	if r.Salary.Valid {
		ej.Salary = json.RawMessage(r.Salary.Decimal.String())
	}
	for _, d := range r.Deductions {
		amount := d.Amount
		raw, _ := json.Marshal(DeductionJSON{
			Type:        d.Type,
			Amount:      &amount,
			Recurring:   d.Recurring,
			Description: d.Description,
		})
		ej.Deductions = append(ej.Deductions, raw)
	}
	return ej
}

// =============================================================================
// HELPERS
// =============================================================================

func (f *EmployeeFactory) parseDeduction(raw json.RawMessage) (payroll.DeductionLine, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return payroll.DeductionLine{}, fmt.Errorf("must be an object with type and amount")
	}

	var dj DeductionJSON
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dj); err != nil {
		return payroll.DeductionLine{}, fmt.Errorf("is malformed: %v", err)
	}

	switch {
	case strings.TrimSpace(dj.Type) == "":
		return payroll.DeductionLine{}, fmt.Errorf("type is required")
	case dj.Amount == nil:
		return payroll.DeductionLine{}, fmt.Errorf("amount is required")
	case dj.Amount.IsNegative():
		return payroll.DeductionLine{}, fmt.Errorf("amount must not be negative")
	case f.IsStatutory != nil && f.IsStatutory(dj.Type):
		return payroll.DeductionLine{}, fmt.Errorf("type %q is statutory and computed automatically", dj.Type)
	}

	return payroll.DeductionLine{
		Type:        strings.TrimSpace(dj.Type),
		Kind:        payroll.KindCustom,
		Amount:      *dj.Amount,
		Recurring:   dj.Recurring,
		Description: dj.Description,
	}, nil
}

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Zero, fmt.Errorf("is required")
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return decimal.Zero, fmt.Errorf("must be numeric")
	}
	return d, nil
}

func prefixed(prefix string, err error) []string {
	if ve, ok := err.(*payroll.ValidationError); ok {
		out := make([]string, len(ve.Violations))
		for i, v := range ve.Violations {
			out[i] = prefix + " " + v
		}
		return out
	}
	return []string{prefix + " " + err.Error()}
}
