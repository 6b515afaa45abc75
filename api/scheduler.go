/*
scheduler.go - Automated monthly payroll generation

PURPOSE:
  Periodically checks whether the current month's payroll is due and
  generates it when no batch exists yet.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Due once today's day of month reaches RunDay
  - Skips periods that already have a batch (any status)
  - A lost race with a manual generate is reported by the engine as a
    Conflict and only logged

USAGE:
  scheduler := NewGenerationScheduler(engine, logger)
  scheduler.RunDay = 25
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GeneratePayroll endpoint (manual generation)
  - payroll/engine.go: Engine.Generate
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

// GenerationScheduler generates the current period's payroll once due.
type GenerationScheduler struct {
	Engine   *payroll.Engine
	RunDay   int
	Interval time.Duration
	Actor    string
	Logger   *zap.Logger

	// Now is the clock. Defaults to the engine's.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewGenerationScheduler creates a scheduler running on the 25th, checking hourly.
func NewGenerationScheduler(engine *payroll.Engine, logger *zap.Logger) *GenerationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationScheduler{
		Engine:   engine,
		RunDay:   25,
		Interval: time.Hour,
		Actor:    payroll.DefaultActor,
		Logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (gs *GenerationScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.ticker != nil {
		return
	}

	gs.ticker = time.NewTicker(gs.Interval)
	gs.stop = make(chan struct{})
	gs.wg.Add(1)

	go gs.run()

	gs.Logger.Info("scheduler started",
		zap.Duration("interval", gs.Interval),
		zap.Int("run_day", gs.RunDay))
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (gs *GenerationScheduler) Stop() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.ticker != nil {
		gs.ticker.Stop()
		close(gs.stop)
		gs.wg.Wait()
		gs.ticker = nil
		gs.Logger.Info("scheduler stopped")
	}
}

func (gs *GenerationScheduler) run() {
	defer gs.wg.Done()

	// Run immediately on start
	gs.RunNow(context.Background())

	for {
		select {
		case <-gs.ticker.C:
			gs.RunNow(context.Background())
		case <-gs.stop:
			return
		}
	}
}

// RunNow performs one check. It returns the created summary, or nil when
// nothing was generated.
func (gs *GenerationScheduler) RunNow(ctx context.Context) *payroll.Summary {
	now := gs.now()
	if now.Day() < gs.RunDay {
		return nil
	}

	period := payroll.PeriodOf(now)
	log := gs.Logger.With(zap.String("period", period.String()))

	existing, err := gs.Engine.Store.FindByPeriod(ctx, period)
	if err != nil {
		log.Error("failed to look up batch", zap.Error(err))
		return nil
	}
	if existing != nil {
		log.Debug("payroll already generated", zap.String("batch_id", existing.ID))
		return nil
	}

	result, err := gs.Engine.Generate(ctx, payroll.GenerateRequest{
		Month:       period.Month,
		Year:        period.Year,
		GeneratedBy: gs.Actor,
		Notes:       "Generated automatically",
	})
	if err != nil {
		log.Error("scheduled generation failed", zap.Error(err))
		return nil
	}
	if result.Conflict != nil {
		log.Info("scheduled generation skipped",
			zap.String("existing_id", result.Conflict.ExistingID))
		return nil
	}

	log.Info("scheduled generation completed",
		zap.String("batch_id", result.Summary.BatchID),
		zap.Int("employees", result.Summary.Employees))
	return result.Summary
}

// NextRunTime returns when the next scheduled check will occur.
func (gs *GenerationScheduler) NextRunTime() time.Time {
	return gs.now().Add(gs.Interval)
}

func (gs *GenerationScheduler) now() time.Time {
	if gs.Now != nil {
		return gs.Now()
	}
	return gs.Engine.Now()
}
