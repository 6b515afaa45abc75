/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine and its collaborators.

ENDPOINTS:
  Payrolls:
    POST   /api/payrolls/generate      Generate and persist a period's batch
    POST   /api/payrolls/preview       Compute a batch without persisting
    GET    /api/payrolls               List batch headers
    GET    /api/payrolls/statistics    Year statistics
    GET    /api/payrolls/{id}          Batch with items
    POST   /api/payrolls/{id}/status   Lifecycle transition

  Employees:
    GET    /api/employees              List all employees
    POST   /api/employees              Create or replace an employee
    GET    /api/employees/{id}         Get employee details

  Statutory:
    POST   /api/statutory/calculate    Net salary and breakdowns for a gross

  Scenarios:
    GET    /api/scenarios              List demo rosters
    POST   /api/scenarios/load         Load a demo roster

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: batch generation and lifecycle
  - Employees: the directory behind the engine's roster
  - Factory: JSON to EmployeeRecord conversion

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid transitions
  - 404: Batch or employee not found
  - 409: Period already generated, status changed concurrently
  - 422: Nothing to generate (empty roster, every employee failed)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo roster loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/benefits"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/statutory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// EmployeeStore is the employee directory surface the API needs.
type EmployeeStore interface {
	SaveEmployee(ctx context.Context, emp payroll.EmployeeRecord) error
	GetEmployee(ctx context.Context, id string) (*payroll.EmployeeRecord, error)
	ListEmployees(ctx context.Context) ([]payroll.EmployeeRecord, error)
}

// Resetter is implemented by stores that can be wiped before a scenario loads.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *payroll.Engine
	Employees EmployeeStore
	Factory   *factory.EmployeeFactory
	Statutory *statutory.Calculator
	Benefits  *benefits.Registry
	Logger    *zap.Logger

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler. The factory rejects statutory deduction
// types and unknown benefits using the given calculator and registry.
func NewHandler(engine *payroll.Engine, employees EmployeeStore, calc *statutory.Calculator, reg *benefits.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	knownBenefit := func(name string) bool {
		_, ok := reg.Lookup(name)
		return ok
	}
	return &Handler{
		Engine:    engine,
		Employees: employees,
		Factory:   factory.NewEmployeeFactory(calc.IsStatutory, knownBenefit),
		Statutory: calc,
		Benefits:  reg,
		Logger:    logger.Named("api"),
	}
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GeneratePayroll generates and persists the batch for a period.
func (h *Handler) GeneratePayroll(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.Engine.Generate(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, "Failed to generate payroll", err)
		return
	}

	if result.Conflict != nil {
		c := result.Conflict
		writeJSON(w, http.StatusConflict, ConflictDTO{
			Error:      fmt.Sprintf("Payroll for %s already exists", c.Period.Label()),
			ExistingID: c.ExistingID,
			Status:     string(c.Status),
			Month:      c.Period.Month,
			Year:       c.Period.Year,
		})
		return
	}

	writeJSON(w, http.StatusCreated, toSummaryDTO(*result.Summary))
}

// PreviewPayroll computes a batch without persisting it.
func (h *Handler) PreviewPayroll(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	batch, err := h.Engine.Preview(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, "Failed to preview payroll", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": toSummaryDTO(batch.Summary()),
		"batch":   toBatchDTO(batch),
	})
}

// MaxPageSize caps the limit query parameter of ListPayrolls.
const MaxPageSize = 100

// ListPayrolls returns one page of batch headers filtered by year, month
// and status. page defaults to 1 and limit to payroll.DefaultPageSize.
func (h *Handler) ListPayrolls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter payroll.ListFilter

	page, limit := 1, payroll.DefaultPageSize
	for _, p := range []intParam{
		{"year", 1, 9999, &filter.Year},
		{"month", 1, 12, &filter.Month},
		{"page", 1, 1 << 20, &page},
		{"limit", 1, MaxPageSize, &limit},
	} {
		if err := p.parse(q.Get(p.name)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+p.name, err)
			return
		}
	}
	if s := q.Get("status"); s != "" {
		status, err := payroll.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		filter.Status = status
	}

	result, err := h.Engine.ListPage(r.Context(), filter, page, limit)
	if err != nil {
		h.writeEngineError(w, "Failed to list payrolls", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchListDTO(result))
}

// intParam is a bounded integer query parameter.
type intParam struct {
	name     string
	min, max int
	dest     *int
}

// parse leaves dest unchanged for an empty value.
func (p intParam) parse(s string) error {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < p.min || v > p.max {
		return fmt.Errorf("%s must be an integer between %d and %d", p.name, p.min, p.max)
	}
	*p.dest = v
	return nil
}

// PayrollStatistics aggregates a year's batches. Year defaults to the
// engine's current year.
func (h *Handler) PayrollStatistics(w http.ResponseWriter, r *http.Request) {
	year := h.Engine.Now().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	stats, err := h.Engine.Statistics(r.Context(), year)
	if err != nil {
		h.writeEngineError(w, "Failed to compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsDTO(stats))
}

// GetPayroll returns one batch with its items.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.Engine.GetDetails(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// TransitionStatus moves a batch along its lifecycle.
func (h *Handler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	batch, err := h.Engine.TransitionStatus(r.Context(), id, payroll.Status(req.Status), req.Actor, req.Notes)
	if err != nil {
		h.writeEngineError(w, "Failed to update payroll status", err)
		return
	}
	writeJSON(w, http.StatusOK, toHeaderDTO(batch))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees, including inactive ones.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Employees.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	emp, err := h.Employees.GetEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee decodes an employee through the factory and saves it.
// An existing employee with the same id is replaced.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp, err := h.Factory.ParseEmployee(body)
	if err != nil {
		writeViolations(w, "Invalid employee", err)
		return
	}

	if err := h.Employees.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}

	h.Logger.Info("employee saved", zap.String("employee_id", emp.ID))
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// STATUTORY HANDLERS
// =============================================================================

// CalculateStatutory returns the statutory view of a gross income.
func (h *Handler) CalculateStatutory(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Gross.IsNegative() {
		writeError(w, http.StatusBadRequest, "gross must not be negative", nil)
		return
	}

	writeJSON(w, http.StatusOK, toNetSalaryDTO(h.Statutory.NetSalary(req.Gross)))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (payroll.GenerateRequest, bool) {
	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return payroll.GenerateRequest{}, false
	}
	req, err := body.ToDomain()
	if err != nil {
		writeViolations(w, "Invalid request", err)
		return payroll.GenerateRequest{}, false
	}
	return req, true
}

// writeEngineError maps engine errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case payroll.IsClientError(err):
		writeViolations(w, message, err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Payroll not found", err)
	case payroll.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case payroll.IsFatalGeneration(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeViolations writes a 400 listing every violation when err carries them.
func writeViolations(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}
	var ve *payroll.ValidationError
	if errors.As(err, &ve) {
		resp.Violations = ve.Violations
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
