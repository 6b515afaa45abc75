package payroll_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestStatus_TransitionTable(t *testing.T) {
	allowed := map[payroll.Status][]payroll.Status{
		payroll.StatusDraft:     {payroll.StatusFinalized, payroll.StatusCancelled},
		payroll.StatusFinalized: {payroll.StatusApproved, payroll.StatusDraft, payroll.StatusCancelled},
		payroll.StatusApproved:  {payroll.StatusPaid, payroll.StatusFinalized, payroll.StatusCancelled},
		payroll.StatusPaid:      {},
		payroll.StatusCancelled: {payroll.StatusDraft},
	}

	for _, from := range payroll.AllStatuses {
		for _, to := range payroll.AllStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, payroll.StatusPaid.Terminal())
	assert.False(t, payroll.StatusCancelled.Terminal())
	assert.False(t, payroll.Status("bogus").Terminal())
	assert.Empty(t, payroll.StatusPaid.AllowedTransitions())
}

func TestParseStatus(t *testing.T) {
	s, err := payroll.ParseStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, s)

	_, err = payroll.ParseStatus("Approved")
	assert.Error(t, err)
}

func TestBatchApply_StampsAndHistory(t *testing.T) {
	at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	b := &payroll.Batch{ID: "b1", Status: payroll.StatusApproved}

	err := b.Apply(payroll.StatusChange{From: payroll.StatusApproved, To: payroll.StatusPaid, Actor: "cfo", At: at, Notes: "wired"})

	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPaid, b.Status)
	assert.Equal(t, "cfo", b.PaidBy)
	require.NotNil(t, b.PaidAt)
	assert.Equal(t, at, *b.PaidAt)
	assert.Equal(t, at, b.UpdatedAt)
	require.Len(t, b.History, 1)
	assert.Equal(t, "wired", b.History[0].Notes)
}

func TestBatchApply_StaleFromStatus(t *testing.T) {
	b := &payroll.Batch{ID: "b1", Status: payroll.StatusFinalized}

	err := b.Apply(payroll.StatusChange{From: payroll.StatusDraft, To: payroll.StatusFinalized, Actor: "u"})

	assert.True(t, errors.Is(err, payroll.ErrConcurrentModification))
	assert.True(t, payroll.IsRetryable(err))
	assert.Empty(t, b.History)
}

func TestBatchApply_RejectsUnlistedTransition(t *testing.T) {
	b := &payroll.Batch{ID: "b1", Status: payroll.StatusDraft}

	err := b.Apply(payroll.StatusChange{From: payroll.StatusDraft, To: payroll.StatusPaid, Actor: "u"})

	var ite *payroll.InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, payroll.StatusDraft, b.Status)
}

func TestPeriod(t *testing.T) {
	p := payroll.NewPeriod(12, 2025)

	assert.Equal(t, "2025-12", p.String())
	assert.Equal(t, "December 2025", p.Label())
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), p.LastDay())
	assert.Equal(t, payroll.NewPeriod(1, 2026), p.Next())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), payroll.NewPeriod(2, 2024).LastDay())
}

func TestBatchClone_IsDeep(t *testing.T) {
	at := time.Now()
	b := &payroll.Batch{
		ID:          "b1",
		Items:       []payroll.PayrollItem{{EmployeeID: "e1", Deductions: []payroll.DeductionLine{{Type: "X"}}}},
		History:     []payroll.StatusChange{{To: payroll.StatusFinalized}},
		FinalizedAt: &at,
	}

	c := b.Clone()
	c.Items[0].Deductions[0].Type = "Y"
	c.History[0].Actor = "someone"
	*c.FinalizedAt = at.Add(time.Hour)

	assert.Equal(t, "X", b.Items[0].Deductions[0].Type)
	assert.Empty(t, b.History[0].Actor)
	assert.Equal(t, at, *b.FinalizedAt)
}
