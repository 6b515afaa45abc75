/*
scenarios.go - Demo rosters for testing and demonstrations

PURPOSE:

	Provides pre-built employee rosters that populate the directory with
	realistic data for demos. Each roster is employee JSON decoded through
	the factory, exactly like POST /api/employees.

AVAILABLE SCENARIOS:

	small-team:    Three salaried employees, defaults only
	mixed-options: Custom deductions, benefit overrides and exclusions,
	               one inactive employee
	legacy-data:   One record with an unreadable salary, showing partial
	               batch failure

HOW SCENARIOS WORK:
 1. Reset the store when it supports it
 2. Decode the roster via factory.ParseEmployees
 3. Save each employee

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-options"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error helpers
  - factory/employee.go: Employee JSON schema
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	roster string
	// legacy records bypass the factory to mimic rows written by older tools.
	legacy []payroll.EmployeeRecord
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "small-team",
			Name:        "Small Team",
			Description: "Three salaried employees with default benefits",
			Employees:   3,
		},
		roster: `[
			{"id": "emp-001", "name": "Amina Otieno", "employee_number": "E-001", "salary": 120000},
			{"id": "emp-002", "name": "Brian Kamau", "employee_number": "E-002", "salary": 85000},
			{"id": "emp-003", "name": "Carol Njeri", "employee_number": "E-003", "salary": 45000}
		]`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "mixed-options",
			Name:        "Mixed Options",
			Description: "Custom deductions, benefit overrides and exclusions, one inactive employee",
			Employees:   4,
		},
		roster: `[
			{
				"id": "emp-101", "name": "David Mwangi", "employee_number": "E-101", "salary": 250000,
				"deductions": [
					{"type": "Sacco Contribution", "amount": 5000, "recurring": true},
					{"type": "Union Dues", "amount": 750, "recurring": true}
				],
				"benefit_overrides": {"Housing Allowance": 30000}
			},
			{
				"id": "emp-102", "name": "Esther Wambui", "employee_number": "E-102", "salary": "68000",
				"excluded_benefits": ["Phone Allowance", "Meal Allowance"]
			},
			{
				"id": "emp-103", "name": "Felix Ochieng", "employee_number": "E-103", "salary": 32000,
				"deductions": [{"type": "Welfare Fund", "amount": 200, "description": "Staff welfare"}]
			},
			{"id": "emp-104", "name": "Grace Akinyi", "employee_number": "E-104", "salary": 90000, "active": false}
		]`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "legacy-data",
			Name:        "Legacy Data",
			Description: "One employee with an unreadable salary; generation records the failure and continues",
			Employees:   3,
		},
		roster: `[
			{"id": "emp-201", "name": "Hassan Abdi", "employee_number": "E-201", "salary": 150000},
			{"id": "emp-202", "name": "Irene Chebet", "employee_number": "E-202", "salary": 72000}
		]`,
		legacy: []payroll.EmployeeRecord{
			{ID: "emp-203", Name: "James Kiprop", Number: "E-203", Salary: decimal.NullDecimal{}},
		},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          current,
		Name:        current,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined roster.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q not found", req.ScenarioID))
		return
	}

	ctx := r.Context()

	// Loads are serialized so a reset never interleaves with another roster.
	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if resetter, ok := h.Employees.(Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
			return
		}
	}
	h.currentScenario = ""

	if err := h.loadRoster(ctx, s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = s.ID
	h.Logger.Info("scenario loaded", zap.String("scenario", s.ID))

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Scenario loaded successfully",
		"scenario": s.ScenarioDTO,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenario returns the id of the loaded scenario, or "".
func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}

func (h *Handler) loadRoster(ctx context.Context, s scenario) error {
	records, err := h.Factory.ParseEmployees([]byte(s.roster))
	if err != nil {
		return fmt.Errorf("scenario %s: %w", s.ID, err)
	}
	records = append(records, s.legacy...)

	for _, rec := range records {
		if err := h.Employees.SaveEmployee(ctx, rec); err != nil {
			return fmt.Errorf("save employee %s: %w", rec.ID, err)
		}
	}
	return nil
}
