package factory_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/benefits"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

func newFactory() *factory.EmployeeFactory {
	calc := statutory.New()
	reg := benefits.DefaultRegistry()
	return factory.NewEmployeeFactory(calc.IsStatutory, func(name string) bool {
		_, ok := reg.Lookup(name)
		return ok
	})
}

func violations(t *testing.T, err error) []string {
	t.Helper()
	var ve *payroll.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	return ve.Violations
}

func TestParseEmployee_Full(t *testing.T) {
	data := `{
		"id": "emp-001",
		"name": "Grace Wanjiku",
		"employee_number": "KE-0001",
		"salary": 85000.50,
		"deductions": [{"type": "Sacco", "amount": 2500, "recurring": true, "description": "monthly"}],
		"benefit_overrides": {"Transport Allowance": 4500},
		"excluded_benefits": ["Phone Allowance"]
	}`

	rec, err := newFactory().ParseEmployee([]byte(data))

	require.NoError(t, err)
	assert.Equal(t, "emp-001", rec.ID)
	assert.Equal(t, "KE-0001", rec.Number)
	require.True(t, rec.Salary.Valid)
	assert.Equal(t, "85000.5", rec.Salary.Decimal.String())
	assert.True(t, rec.IsActive())
	require.Len(t, rec.Deductions, 1)
	assert.Equal(t, payroll.KindCustom, rec.Deductions[0].Kind)
	assert.True(t, rec.Deductions[0].Recurring)
	assert.Equal(t, "4500", rec.BenefitOverrides[benefits.TransportAllowance].String())
	assert.Equal(t, []string{benefits.PhoneAllowance}, rec.ExcludedBenefits)
}

func TestParseEmployee_SalaryAsNumericString(t *testing.T) {
	rec, err := newFactory().ParseEmployee([]byte(`{"id":"e","name":"E","salary":"42000"}`))

	require.NoError(t, err)
	assert.Equal(t, "42000", rec.Salary.Decimal.String())
}

func TestParseEmployee_InactiveFlag(t *testing.T) {
	rec, err := newFactory().ParseEmployee([]byte(`{"id":"e","name":"E","salary":1,"active":false}`))

	require.NoError(t, err)
	assert.False(t, rec.IsActive())
	assert.False(t, rec.Eligible())
}

func TestParseEmployee_RejectsAmbiguousInput(t *testing.T) {
	data := `{
		"id": "",
		"name": "X",
		"salary": "lots",
		"deductions": ["Sacco", {"type": "PAYE", "amount": 10}, {"type": "Gym"}, {"type": "Loan", "amount": -1}],
		"benefit_overrides": {"Yacht Allowance": 1},
		"excluded_benefits": ["Free Lunch"]
	}`

	_, err := newFactory().ParseEmployee([]byte(data))

	v := violations(t, err)
	assert.Contains(t, v, "id is required")
	assert.Contains(t, v, "salary must be numeric")
	assert.Contains(t, v, "deductions[0] must be an object with type and amount")
	assert.Contains(t, v, `deductions[1] type "PAYE" is statutory and computed automatically`)
	assert.Contains(t, v, "deductions[2] amount is required")
	assert.Contains(t, v, "deductions[3] amount must not be negative")
	assert.Contains(t, v, `benefit_overrides: unknown benefit "Yacht Allowance"`)
	assert.Contains(t, v, `excluded_benefits: unknown benefit "Free Lunch"`)
}

func TestParseEmployee_MissingAndNegativeSalary(t *testing.T) {
	_, err := newFactory().ParseEmployee([]byte(`{"id":"e","name":"E"}`))
	assert.Contains(t, violations(t, err), "salary is required")

	_, err = newFactory().ParseEmployee([]byte(`{"id":"e","name":"E","salary":-5}`))
	assert.Contains(t, violations(t, err), "salary must not be negative")
}

func TestParseEmployee_MalformedJSON(t *testing.T) {
	_, err := newFactory().ParseEmployee([]byte(`{"id":`))

	assert.Error(t, err)
}

func TestParseEmployees_ReportsEveryElement(t *testing.T) {
	data := `[
		{"id":"a","name":"A","salary":1000},
		{"id":"b","name":"","salary":1000},
		{"id":"c","name":"C"}
	]`

	_, err := newFactory().ParseEmployees([]byte(data))

	v := violations(t, err)
	assert.Equal(t, []string{"[1] name is required", "[2] salary is required"}, v)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := newFactory()
	rec, err := f.ParseEmployee([]byte(`{"id":"e","name":"E","salary":"1234.5","deductions":[{"type":"Sacco","amount":10}]}`))
	require.NoError(t, err)

	raw, err := json.Marshal(factory.ToJSON(rec))
	require.NoError(t, err)
	again, err := f.ParseEmployee(raw)

	require.NoError(t, err)
	assert.True(t, again.Salary.Decimal.Equal(rec.Salary.Decimal))
	require.Len(t, again.Deductions, 1)
	assert.True(t, again.Deductions[0].Amount.Equal(rec.Deductions[0].Amount))
}
