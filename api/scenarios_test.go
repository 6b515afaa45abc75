/*
scenarios_test.go - Tests for demo roster loading

Each scenario is loaded into a SQLite store and a payroll is generated
from it, so the rosters stay valid as the factory evolves.
*/
package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/benefits"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
	"github.com/warp/payroll-engine/statutory"
	"github.com/warp/payroll-engine/store/sqlite"
)

func setupScenarioServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	calc := statutory.New()
	reg := benefits.DefaultRegistry()
	engine := payroll.NewEngine(db, db, payroll.NewCalculator(calc, reg), payroll.EngineConfig{}, zap.NewNop())
	engine.Now = func() time.Time { return testNow }

	h := NewHandler(engine, db, calc, reg, zap.NewNop())
	return &testServer{handler: h, router: NewRouter(h, nil)}
}

func loadScenario(t *testing.T, s *testServer, id string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
}

func TestScenario_AllScenariosLoadAndGenerate(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := setupScenarioServer(t)

			rec := loadScenario(t, s, sc.ID)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			employees := decode[[]EmployeeDTO](t, s.do(t, http.MethodGet, "/api/employees", nil))
			assert.Len(t, employees, sc.Employees)

			gen := s.do(t, http.MethodPost, "/api/payrolls/generate", GenerateRequest{Month: 7, Year: 2025})
			assert.Equal(t, http.StatusCreated, gen.Code, gen.Body.String())
		})
	}
}

func TestScenario_MixedOptions(t *testing.T) {
	// GIVEN: The mixed-options roster
	s := setupScenarioServer(t)
	require.Equal(t, http.StatusOK, loadScenario(t, s, "mixed-options").Code)

	// WHEN: Generating
	summary := decode[SummaryDTO](t, s.do(t, http.MethodPost, "/api/payrolls/generate",
		GenerateRequest{Month: 7, Year: 2025}))

	// THEN: The inactive employee is left out and custom lines are carried
	assert.Equal(t, 3, summary.Employees)

	batch := decode[BatchDTO](t, s.do(t, http.MethodGet, "/api/payrolls/"+summary.BatchID, nil))
	require.Len(t, batch.Items, 3)
	var types []string
	for _, d := range batch.Items[0].Deductions {
		types = append(types, d.Type)
	}
	assert.Contains(t, types, "Sacco Contribution")
	assert.Contains(t, types, "Union Dues")
}

func TestScenario_LegacyDataRecordsPartialFailure(t *testing.T) {
	s := setupScenarioServer(t)
	require.Equal(t, http.StatusOK, loadScenario(t, s, "legacy-data").Code)

	summary := decode[SummaryDTO](t, s.do(t, http.MethodPost, "/api/payrolls/generate",
		GenerateRequest{Month: 7, Year: 2025}))

	assert.Equal(t, 2, summary.Employees)
	assert.Equal(t, 1, summary.ErrorCount)

	batch := decode[BatchDTO](t, s.do(t, http.MethodGet, "/api/payrolls/"+summary.BatchID, nil))
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, "emp-203", batch.Errors[0].EmployeeID)
	require.Len(t, batch.Warnings, 1)
	assert.True(t, strings.HasPrefix(batch.Warnings[0], "Skipped James Kiprop"))
}

func TestScenario_LoadResetsPreviousData(t *testing.T) {
	s := setupScenarioServer(t)
	require.Equal(t, http.StatusOK, loadScenario(t, s, "mixed-options").Code)
	s.do(t, http.MethodPost, "/api/payrolls/generate", GenerateRequest{Month: 7, Year: 2025})

	require.Equal(t, http.StatusOK, loadScenario(t, s, "small-team").Code)

	employees := decode[[]EmployeeDTO](t, s.do(t, http.MethodGet, "/api/employees", nil))
	assert.Len(t, employees, 3)
	list := decode[BatchListDTO](t, s.do(t, http.MethodGet, "/api/payrolls", nil))
	assert.Empty(t, list.Items)
	assert.Zero(t, list.Total)

	current := decode[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "small-team", current.ID)
}

func TestScenario_ReloadInMemoryModeAllowsGenerateAgain(t *testing.T) {
	// GIVEN: Memory mode with July generated from a loaded scenario
	backend := store.NewBackend()
	calc := statutory.New()
	reg := benefits.DefaultRegistry()
	engine := payroll.NewEngine(backend, backend, payroll.NewCalculator(calc, reg), payroll.EngineConfig{}, zap.NewNop())
	engine.Now = func() time.Time { return testNow }
	h := NewHandler(engine, backend, calc, reg, zap.NewNop())
	s := &testServer{handler: h, router: NewRouter(h, nil)}

	require.Equal(t, http.StatusOK, loadScenario(t, s, "small-team").Code)
	first := s.do(t, http.MethodPost, "/api/payrolls/generate", GenerateRequest{Month: 7, Year: 2025})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	// WHEN: Reloading the scenario and generating July again
	require.Equal(t, http.StatusOK, loadScenario(t, s, "small-team").Code)
	second := s.do(t, http.MethodPost, "/api/payrolls/generate", GenerateRequest{Month: 7, Year: 2025})

	// THEN: The old batch went with the reset, so there is no conflict
	assert.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	list := decode[BatchListDTO](t, s.do(t, http.MethodGet, "/api/payrolls", nil))
	assert.Equal(t, 1, list.Total)
}

func TestScenario_ConcurrentLoadsAndReads(t *testing.T) {
	s := setupScenarioServer(t)

	var wg sync.WaitGroup
	for _, id := range []string{"small-team", "mixed-options", "small-team", "legacy-data"} {
		id := id
		wg.Add(2)
		go func() {
			defer wg.Done()
			loadScenario(t, s, id)
		}()
		go func() {
			defer wg.Done()
			s.do(t, http.MethodGet, "/api/scenarios/current", nil)
		}()
	}
	wg.Wait()

	current := decode[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Contains(t, []string{"small-team", "mixed-options", "legacy-data"}, current.ID)
}

func TestScenario_Unknown(t *testing.T) {
	s := setupScenarioServer(t)

	rec := loadScenario(t, s, "does-not-exist")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListScenarios(t *testing.T) {
	s := setupScenarioServer(t)

	list := decode[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))

	require.Len(t, list, len(scenarios))
	assert.Equal(t, "small-team", list[0].ID)
}
