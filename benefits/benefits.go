/*
Package benefits resolves the benefits paid on top of gross salary.

PURPOSE:
  Implements payroll.BenefitResolver with an ordered registry of benefit
  types. Each type has a default amount computed from gross income, either
  a percentage or a flat stipend.

RESOLUTION RULES:
  For each registered type, in registry order:
  - excluded      -> omitted entirely (never emitted with amount 0)
  - overridden    -> override amount (negative overrides are ignored)
  - otherwise     -> default amount at gross
  Amounts are rounded to whole currency units.

DEFAULT REGISTRY:
  Medical Insurance   2% of gross
  Transport Allowance 3000
  Housing Allowance   15% of gross
  Meal Allowance      2000
  Phone Allowance     1000
  Overtime            0, variable
  Commission          0, variable

SEE ALSO:
  - payroll/compute.go: Caller
*/
package benefits

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Default benefit type names.
const (
	MedicalInsurance   = "Medical Insurance"
	TransportAllowance = "Transport Allowance"
	HousingAllowance   = "Housing Allowance"
	MealAllowance      = "Meal Allowance"
	PhoneAllowance     = "Phone Allowance"
	Overtime           = "Overtime"
	Commission         = "Commission"
)

// AmountFunc computes a default benefit amount from gross income.
type AmountFunc func(gross decimal.Decimal) decimal.Decimal

// Percentage returns an AmountFunc paying rate * gross.
func Percentage(rate decimal.Decimal) AmountFunc {
	return func(gross decimal.Decimal) decimal.Decimal {
		return gross.Mul(rate)
	}
}

// Flat returns an AmountFunc paying a fixed amount.
func Flat(amount decimal.Decimal) AmountFunc {
	return func(decimal.Decimal) decimal.Decimal {
		return amount
	}
}

// Type is one registered benefit.
type Type struct {
	Name        string
	Description string
	// Recurring is false for variable or performance-linked pay.
	Recurring bool
	Default   AmountFunc
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is an ordered set of benefit types. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types []Type
	index map[string]int
}

// NewRegistry creates a registry holding types in the given order.
func NewRegistry(types ...Type) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, t := range types {
		r.Register(t)
	}
	return r
}

// DefaultRegistry returns the standard benefit set.
func DefaultRegistry() *Registry {
	pct := func(s string) AmountFunc { return Percentage(decimal.RequireFromString(s)) }
	flat := func(n int64) AmountFunc { return Flat(decimal.NewFromInt(n)) }
	return NewRegistry(
		Type{Name: MedicalInsurance, Description: "Medical cover (2% of gross)", Recurring: true, Default: pct("0.02")},
		Type{Name: TransportAllowance, Description: "Monthly transport stipend", Recurring: true, Default: flat(3000)},
		Type{Name: HousingAllowance, Description: "Housing allowance (15% of gross)", Recurring: true, Default: pct("0.15")},
		Type{Name: MealAllowance, Description: "Monthly meal stipend", Recurring: true, Default: flat(2000)},
		Type{Name: PhoneAllowance, Description: "Monthly airtime stipend", Recurring: true, Default: flat(1000)},
		Type{Name: Overtime, Description: "Variable overtime pay", Recurring: false, Default: flat(0)},
		Type{Name: Commission, Description: "Variable sales commission", Recurring: false, Default: flat(0)},
	)
}

// Register adds t, or replaces the type with the same name in place.
func (r *Registry) Register(t Type) {
	if t.Default == nil {
		t.Default = Flat(decimal.Zero)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[t.Name]; ok {
		r.types[i] = t
		return
	}
	r.index[t.Name] = len(r.types)
	r.types = append(r.types, t)
}

// Lookup finds a registered type by name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return Type{}, false
	}
	return r.types[i], true
}

// MustLookup finds a registered type or panics.
func (r *Registry) MustLookup(name string) Type {
	t, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("benefit type not registered: %s", name))
	}
	return t
}

// List returns the registered types in order.
func (r *Registry) List() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Type(nil), r.types...)
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolve returns the benefit lines for an employee with the given gross.
func (r *Registry) Resolve(gross decimal.Decimal, overrides map[string]decimal.Decimal, excluded []string) []payroll.BenefitLine {
	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[name] = true
	}

	types := r.List()
	lines := make([]payroll.BenefitLine, 0, len(types))
	for _, t := range types {
		if skip[t.Name] {
			continue
		}
		amount := t.Default(gross)
		if o, ok := overrides[t.Name]; ok && !o.IsNegative() {
			amount = o
		}
		lines = append(lines, payroll.BenefitLine{
			Type:      t.Name,
			Amount:    payroll.RoundUnits(decimal.Max(amount, decimal.Zero)),
			Recurring: t.Recurring,
		})
	}
	return lines
}
