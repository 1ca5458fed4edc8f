// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnBudgetCallCap(t *testing.T) {
	start := time.Now()
	budget := NewTurnBudget(Policy{
		MaxToolCallsPerTurn: 3,
		WallClockBudget:     time.Hour,
	}, start)

	for i := 0; i < 3; i++ {
		require.NoError(t, budget.TryConsumeCall(start))
	}
	err := budget.TryConsumeCall(start)
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	status := budget.Status(start)
	assert.Equal(t, 3, status.ToolCallsUsed)
	assert.Equal(t, 3, status.ToolCallsLimit)
}

func TestTurnBudgetWallClock(t *testing.T) {
	start := time.Now()
	budget := NewTurnBudget(Policy{
		MaxToolCallsPerTurn: 10,
		WallClockBudget:     5 * time.Second,
	}, start)

	require.NoError(t, budget.TryConsumeCall(start.Add(4*time.Second)))

	// At and past the deadline nothing more is admitted.
	assert.ErrorIs(t, budget.TryConsumeCall(start.Add(5*time.Second)), ErrBudgetExhausted)
	assert.ErrorIs(t, budget.TryConsumeCall(start.Add(6*time.Second)), ErrBudgetExhausted)

	// A rejected call consumes nothing.
	assert.Equal(t, 1, budget.Status(start.Add(6*time.Second)).ToolCallsUsed)
}

func TestTurnBudgetExhausted(t *testing.T) {
	start := time.Now()
	budget := NewTurnBudget(Policy{
		MaxToolCallsPerTurn: 1,
		WallClockBudget:     time.Minute,
	}, start)

	assert.False(t, budget.Exhausted(start))
	require.NoError(t, budget.TryConsumeCall(start))
	assert.True(t, budget.Exhausted(start))
	assert.True(t, budget.Exhausted(start.Add(2*time.Minute)))
}

func TestBackoffGrowth(t *testing.T) {
	p := Policy{BackoffBase: 100 * time.Millisecond}

	for attempt := 1; attempt <= 3; attempt++ {
		base := p.BackoffBase << (attempt - 1)
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base+base/4, "attempt %d", attempt)
	}

	// Attempt below one is clamped, zero base falls back to a default.
	assert.Greater(t, Policy{}.Backoff(0), time.Duration(0))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 8, p.MaxToolCallsPerTurn)
	assert.Equal(t, 8*time.Second, p.WallClockBudget)
	assert.Equal(t, 2500*time.Millisecond, p.PerCallTimeout)
	assert.Equal(t, 2, p.MaxRetriesPerCall)
	assert.Equal(t, 20, p.MaxHotelsPriced)
}
