package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

func newTestScheduler(t *testing.T, now time.Time) (*GenerationScheduler, *testServer) {
	t.Helper()
	s := newTestServer(t, employee("e1", "Amina", 100000))
	s.handler.Engine.Now = func() time.Time { return now }
	gs := NewGenerationScheduler(s.handler.Engine, zap.NewNop())
	gs.Actor = "scheduler"
	return gs, s
}

func TestScheduler_NotDueBeforeRunDay(t *testing.T) {
	// GIVEN: The 20th with run day 25
	gs, s := newTestScheduler(t, time.Date(2025, 7, 20, 8, 0, 0, 0, time.UTC))

	// WHEN: Checking
	summary := gs.RunNow(context.Background())

	// THEN: Nothing is generated
	assert.Nil(t, summary)
	b, err := s.batches.FindByPeriod(context.Background(), payroll.NewPeriod(7, 2025))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestScheduler_GeneratesOnceWhenDue(t *testing.T) {
	// GIVEN: The 26th with run day 25
	gs, s := newTestScheduler(t, time.Date(2025, 7, 26, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// WHEN: Checking twice
	first := gs.RunNow(ctx)
	second := gs.RunNow(ctx)

	// THEN: Only the first check generates
	require.NotNil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, payroll.NewPeriod(7, 2025), first.Period)

	b, err := s.batches.Get(ctx, first.BatchID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "scheduler", b.GeneratedBy)
	assert.Equal(t, payroll.StatusDraft, b.Status)
}

func TestScheduler_SkipsManuallyGeneratedPeriod(t *testing.T) {
	gs, s := newTestScheduler(t, time.Date(2025, 7, 28, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()
	_, err := s.handler.Engine.Generate(ctx, payroll.GenerateRequest{Month: 7, Year: 2025, GeneratedBy: "hr"})
	require.NoError(t, err)

	assert.Nil(t, gs.RunNow(ctx))

	headers, err := s.batches.List(ctx, payroll.ListFilter{})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, "hr", headers[0].GeneratedBy)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	gs, s := newTestScheduler(t, time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC))
	gs.Interval = time.Hour

	gs.Start()
	gs.Stop()

	b, err := s.batches.FindByPeriod(context.Background(), payroll.NewPeriod(7, 2025))
	require.NoError(t, err)
	assert.NotNil(t, b)

	// Stopping twice is harmless.
	gs.Stop()
}

func TestScheduler_NextRunTime(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	gs, _ := newTestScheduler(t, now)
	gs.Interval = 30 * time.Minute

	assert.Equal(t, now.Add(30*time.Minute), gs.NextRunTime())
}
