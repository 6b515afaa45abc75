/*
engine.go - Batch generation orchestrator and lifecycle operations

PURPOSE:
  The operations the rest of the system calls: Generate, Preview,
  TransitionStatus, GetDetails, List, ListPage and Statistics.

GENERATE FLOW:
  1. Resolve defaults, validate (all violations reported)
  2. FindByPeriod: existing batch -> Conflict result
  3. Load roster, keep eligible records, sort by employee id
  4. Compute every employee in parallel; failures are recorded, not fatal
  5. Merge results in roster order, sum totals
  6. Store.Create in draft; a lost race surfaces as Conflict
  7. Return the summary

Preview runs steps 1 and 3-5 through the same code and persists nothing.

CONCURRENCY:
  The parallel pass writes results into a slice indexed by roster position
  so item order and totals never depend on scheduling. Uniqueness per
  period is enforced by Store.Create, never by the prior lookup alone.
  Status changes are compare-and-swap on the current status.

SEE ALSO:
  - compute.go: Per-employee computation
  - status.go: Transition table
  - store.go: Directory and Store contracts
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultActor is recorded when a caller does not identify itself.
const DefaultActor = "system"

// =============================================================================
// CONFIGURATION
// =============================================================================

// EngineConfig tunes the engine. Zero values fall back to defaults.
type EngineConfig struct {
	DefaultWorkingDays int
	Years              YearRange
	Workers            int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.DefaultWorkingDays <= 0 {
		c.DefaultWorkingDays = 22
	}
	if c.Years.Min == 0 && c.Years.Max == 0 {
		c.Years = DefaultYearRange
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// =============================================================================
// RESULTS
// =============================================================================

// Conflict describes the batch that already owns a period.
type Conflict struct {
	ExistingID string `json:"existing_id"`
	Status     Status `json:"status"`
	Period     Period `json:"period"`
}

// GenerateResult is the outcome of Generate. Exactly one of Summary and
// Conflict is set.
type GenerateResult struct {
	Summary  *Summary
	Conflict *Conflict
}

// Created reports whether a new batch was persisted.
func (r *GenerateResult) Created() bool {
	return r != nil && r.Summary != nil
}

// DefaultPageSize is used by ListPage when no limit is given.
const DefaultPageSize = 20

// BatchPage is one page of batch headers.
type BatchPage struct {
	Items []Batch
	Total int
	Page  int
	Limit int
	Pages int
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates payroll batches.
type Engine struct {
	Directory  Directory
	Store      Store
	Calculator *Calculator
	Config     EngineConfig
	Logger     *zap.Logger

	// Now is the clock. Tests replace it.
	Now func() time.Time

	validator *Validator
}

// NewEngine wires an engine. A nil logger disables logging.
func NewEngine(dir Directory, store Store, calc *Calculator, cfg EngineConfig, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Directory:  dir,
		Store:      store,
		Calculator: calc,
		Config:     cfg,
		Logger:     logger.Named("payroll.engine"),
		Now:        func() time.Time { return time.Now().UTC() },
		validator:  NewValidator(cfg.Years),
	}
}

// Generate computes and persists the batch for the request's period.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	req = e.resolve(req)
	if err := e.validator.Check(req, e.Now()); err != nil {
		return nil, err
	}
	period := req.Period()
	log := e.Logger.With(zap.String("period", period.String()))

	existing, err := e.Store.FindByPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("find batch for %s: %w", period, err)
	}
	if existing != nil {
		log.Info("payroll already generated for period",
			zap.String("existing_id", existing.ID),
			zap.String("status", string(existing.Status)))
		return conflictResult(existing), nil
	}

	batch, err := e.build(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := e.Store.Create(ctx, batch); err != nil {
		if !errors.Is(err, ErrBatchExists) {
			return nil, fmt.Errorf("persist batch %s: %w", batch.ID, err)
		}
		// Another generate won the race between lookup and create.
		winner, ferr := e.Store.FindByPeriod(ctx, period)
		if ferr != nil {
			return nil, fmt.Errorf("find batch for %s: %w", period, ferr)
		}
		if winner == nil {
			return nil, fmt.Errorf("persist batch %s: %w", batch.ID, err)
		}
		log.Info("lost generation race for period", zap.String("existing_id", winner.ID))
		return conflictResult(winner), nil
	}

	summary := batch.Summary()
	log.Info("payroll generated",
		zap.String("batch_id", batch.ID),
		zap.Int("employees", summary.Employees),
		zap.Int("errors", summary.ErrorCount),
		zap.String("net_pay", summary.Totals.NetPay.String()),
		zap.Duration("processing_time", summary.ProcessingTime))
	return &GenerateResult{Summary: &summary}, nil
}

// Preview computes the batch Generate would persist, without persisting
// it and without the period uniqueness check.
func (e *Engine) Preview(ctx context.Context, req GenerateRequest) (*Batch, error) {
	req = e.resolve(req)
	if err := e.validator.Check(req, e.Now()); err != nil {
		return nil, err
	}
	return e.build(ctx, req)
}

// TransitionStatus moves a batch to target on behalf of actor.
func (e *Engine) TransitionStatus(ctx context.Context, id string, target Status, actor, notes string) (*Batch, error) {
	if !target.Valid() {
		return nil, &ValidationError{Violations: []string{
			fmt.Sprintf("status must be one of %v", AllStatuses),
		}}
	}
	if actor == "" {
		actor = DefaultActor
	}

	current, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	if current == nil {
		return nil, &NotFoundError{BatchID: id}
	}
	if !current.Status.CanTransitionTo(target) {
		return nil, &InvalidTransitionError{From: current.Status, To: target}
	}

	change := StatusChange{
		From:  current.Status,
		To:    target,
		Actor: actor,
		At:    e.Now(),
		Notes: notes,
	}
	updated, err := e.Store.UpdateStatus(ctx, id, change)
	if err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return nil, &NotFoundError{BatchID: id}
		}
		return nil, err
	}

	e.Logger.Info("payroll status changed",
		zap.String("batch_id", id),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
		zap.String("actor", actor))
	return updated, nil
}

// GetDetails returns the full batch.
func (e *Engine) GetDetails(ctx context.Context, id string) (*Batch, error) {
	b, err := e.Store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	if b == nil {
		return nil, &NotFoundError{BatchID: id}
	}
	return b, nil
}

// List returns batch headers matching f.
func (e *Engine) List(ctx context.Context, f ListFilter) ([]Batch, error) {
	return e.Store.List(ctx, f)
}

// ListPage returns the 1-based page of headers matching f, limit per page.
// f.Limit and f.Offset are replaced by the page window.
func (e *Engine) ListPage(ctx context.Context, f ListFilter, page, limit int) (*BatchPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	f.Limit, f.Offset = limit, (page-1)*limit

	total, err := e.Store.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count batches: %w", err)
	}
	items, err := e.Store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return &BatchPage{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// Statistics aggregates every batch of year.
func (e *Engine) Statistics(ctx context.Context, year int) (YearStatistics, error) {
	batches, err := e.Store.List(ctx, ListFilter{Year: year})
	if err != nil {
		return YearStatistics{}, err
	}
	return ComputeYearStatistics(year, batches), nil
}

// =============================================================================
// SHARED COMPUTATION PATH
// =============================================================================

func (e *Engine) resolve(req GenerateRequest) GenerateRequest {
	if req.WorkingDays == 0 {
		req.WorkingDays = e.Config.DefaultWorkingDays
	}
	if req.GeneratedBy == "" {
		req.GeneratedBy = DefaultActor
	}
	return req
}

type outcome struct {
	item PayrollItem
	err  error
}

// build runs the roster pass shared by Generate and Preview.
func (e *Engine) build(ctx context.Context, req GenerateRequest) (*Batch, error) {
	start := time.Now()
	period := req.Period()

	roster, err := e.roster(ctx)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, &GenerationError{Period: period, Err: ErrEmptyRoster}
	}

	results := make([]outcome, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Config.Workers)
	for i, emp := range roster {
		i, emp := i, emp
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			opts := e.optionsFor(req, emp.ID)
			item, err := e.Calculator.Compute(emp, period, opts)
			results[i] = outcome{item: item, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := e.Now()
	batch := &Batch{
		ID:          NewBatchID(period),
		Period:      period,
		PayPeriod:   period.Label(),
		PayDate:     period.Next().FirstDay(),
		CutoffDate:  period.LastDay(),
		Status:      StatusDraft,
		Items:       make([]PayrollItem, 0, len(roster)),
		GeneratedBy: req.GeneratedBy,
		Notes:       req.Notes,
		History:     []StatusChange{},
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata: Metadata{
			Errors:   []ItemError{},
			Warnings: []string{},
		},
	}
	if req.PayDate != nil {
		batch.PayDate = dateOnly(*req.PayDate)
	}
	if req.CutoffDate != nil {
		batch.CutoffDate = dateOnly(*req.CutoffDate)
	}

	for i, r := range results {
		if r.err != nil {
			emp := roster[i]
			name := emp.Name
			if name == "" {
				name = emp.ID
			}
			batch.Metadata.Errors = append(batch.Metadata.Errors, ItemError{
				EmployeeID:   emp.ID,
				EmployeeName: emp.Name,
				Message:      r.err.Error(),
			})
			batch.Metadata.Warnings = append(batch.Metadata.Warnings,
				fmt.Sprintf("Skipped %s due to calculation error", name))
			e.Logger.Warn("employee payroll failed",
				zap.String("period", period.String()),
				zap.String("employee_id", emp.ID),
				zap.Error(r.err))
			continue
		}
		batch.Items = append(batch.Items, r.item)
		batch.Totals.Add(r.item)
	}

	if len(batch.Items) == 0 {
		return nil, &GenerationError{Period: period, Failures: batch.Metadata.Errors, Err: ErrNoSuccessfulItems}
	}

	batch.Metadata.ProcessingTime = time.Since(start)
	return batch, nil
}

// roster loads eligible employees in a stable order.
func (e *Engine) roster(ctx context.Context) ([]EmployeeRecord, error) {
	all, err := e.Directory.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	roster := make([]EmployeeRecord, 0, len(all))
	for _, emp := range all {
		if emp.Eligible() {
			roster = append(roster, emp)
		}
	}
	sort.SliceStable(roster, func(i, j int) bool {
		return roster[i].ID < roster[j].ID
	})
	return roster, nil
}

func (e *Engine) optionsFor(req GenerateRequest, employeeID string) ComputeOptions {
	opts := DefaultComputeOptions(req.WorkingDays)
	o, ok := req.EmployeeOptions[employeeID]
	if !ok {
		return opts
	}
	if o.DaysWorked != nil {
		opts.DaysWorked = *o.DaysWorked
	}
	if o.OvertimeRate != nil {
		opts.OvertimeRate = *o.OvertimeRate
	}
	opts.OvertimeHours = o.OvertimeHours
	opts.Advance = o.Advance
	opts.Loan = o.Loan
	return opts
}

func conflictResult(b *Batch) *GenerateResult {
	return &GenerateResult{Conflict: &Conflict{
		ExistingID: b.ID,
		Status:     b.Status,
		Period:     b.Period,
	}}
}
