package payroll

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// GenerateRequest describes one generate or preview call.
type GenerateRequest struct {
	Month int `json:"month" validate:"min=1,max=12"`
	Year  int `json:"year"`

	// WorkingDays of zero means the engine default.
	WorkingDays int `json:"working_days" validate:"omitempty,min=1,max=31"`

	// PayDate of nil means the first day of the next period.
	PayDate *time.Time `json:"pay_date,omitempty"`

	// CutoffDate of nil means the last day of the period. When set it must
	// fall inside the period and not after the pay date.
	CutoffDate *time.Time `json:"cutoff_date,omitempty"`

	GeneratedBy string `json:"generated_by" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=2000"`

	EmployeeOptions map[string]EmployeeOptions `json:"employee_options" validate:"omitempty,dive"`
}

// Period returns the request's period.
func (r GenerateRequest) Period() Period {
	return NewPeriod(r.Month, r.Year)
}

// EmployeeOptions overrides the defaults for one employee.
type EmployeeOptions struct {
	DaysWorked    *int             `json:"days_worked,omitempty" validate:"omitempty,min=0,max=31"`
	OvertimeHours decimal.Decimal  `json:"overtime_hours" validate:"gte=0,lte=744"`
	OvertimeRate  *decimal.Decimal `json:"overtime_rate,omitempty" validate:"omitempty,gte=0,lte=10"`
	Advance       decimal.Decimal  `json:"advance" validate:"gte=0"`
	Loan          decimal.Decimal  `json:"loan" validate:"gte=0"`
}

// YearRange bounds the accepted batch years (inclusive).
type YearRange struct {
	Min int
	Max int
}

// DefaultYearRange is used when the engine is not configured otherwise.
var DefaultYearRange = YearRange{Min: 2020, Max: 2050}

// Validator checks generate requests. All violations are reported at once.
type Validator struct {
	years    YearRange
	validate *validator.Validate
}

// NewValidator creates a validator accepting years in r.
func NewValidator(r YearRange) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Range tags compare decimals as floats; the bounds are small integers.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &Validator{years: r, validate: v}
}

// Check returns a *ValidationError listing every problem with req, or nil.
// today is the calendar date the pay date is compared against.
func (v *Validator) Check(req GenerateRequest, today time.Time) error {
	var violations []string

	if err := v.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Violations: []string{err.Error()}}
		}
		for _, fe := range verrs {
			violations = append(violations, describe(fe))
		}
	}

	if req.Year < v.years.Min || req.Year > v.years.Max {
		violations = append(violations,
			fmt.Sprintf("year must be between %d and %d", v.years.Min, v.years.Max))
	}

	if req.PayDate != nil {
		day := dateOnly(today)
		if dateOnly(*req.PayDate).Before(day) {
			violations = append(violations,
				fmt.Sprintf("pay_date must not be before %s", day.Format(dateLayout)))
		}
	}

	if req.CutoffDate != nil && req.Month >= 1 && req.Month <= 12 {
		period := req.Period()
		cutoff := dateOnly(*req.CutoffDate)
		if cutoff.Before(period.FirstDay()) || cutoff.After(period.LastDay()) {
			violations = append(violations, fmt.Sprintf("cutoff_date must be between %s and %s",
				period.FirstDay().Format(dateLayout), period.LastDay().Format(dateLayout)))
		} else if req.PayDate != nil && dateOnly(*req.PayDate).Before(cutoff) {
			violations = append(violations, "pay_date must not be before cutoff_date")
		}
	}

	workingDays := req.WorkingDays
	if workingDays >= 1 && workingDays <= 31 {
		ids := make([]string, 0, len(req.EmployeeOptions))
		for id := range req.EmployeeOptions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			o := req.EmployeeOptions[id]
			if o.DaysWorked != nil && *o.DaysWorked > workingDays {
				violations = append(violations,
					fmt.Sprintf("employee_options[%s].days_worked must not exceed working_days (%d)", id, workingDays))
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

// describe turns a field error into "field must ..." text.
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
