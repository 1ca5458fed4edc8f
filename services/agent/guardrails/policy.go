// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guardrails bounds tool usage within a single conversational turn.
//
// A Policy is read-only configuration; a TurnBudget is the per-turn tracker
// evaluated fresh on every turn. Exceeding the call cap or the wall-clock
// budget is a deliberate, observable degradation, distinct from a tool-level
// failure.
package guardrails

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned when a tool call is requested after the
// turn budget (call count or wall clock) is spent.
var ErrBudgetExhausted = errors.New("turn budget exhausted")

// Policy is the immutable per-turn budget configuration.
type Policy struct {
	// MaxToolCallsPerTurn is the hard cap on tool calls in one turn.
	MaxToolCallsPerTurn int

	// WallClockBudget is the cumulative deadline across the whole turn.
	// It is a deadline from turn start, not a sum of call latencies.
	WallClockBudget time.Duration

	// PerCallTimeout bounds each individual tool call attempt.
	PerCallTimeout time.Duration

	// MaxRetriesPerCall is the number of retries (beyond the first attempt)
	// allowed for transient failures of one logical call.
	MaxRetriesPerCall int

	// BackoffBase is the delay before the first retry. Subsequent retries
	// double it, with jitter.
	BackoffBase time.Duration

	// MaxHotelsPriced caps how many search candidates are priced per turn.
	MaxHotelsPriced int
}

// DefaultPolicy returns production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxToolCallsPerTurn: 8,
		WallClockBudget:     8 * time.Second,
		PerCallTimeout:      2500 * time.Millisecond,
		MaxRetriesPerCall:   2,
		BackoffBase:         150 * time.Millisecond,
		MaxHotelsPriced:     20,
	}
}

// Backoff returns the delay before retry attempt n (1-based), exponential
// with up to 25% jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BackoffBase
	if base <= 0 {
		base = 150 * time.Millisecond
	}
	d := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// TurnBudget tracks budget consumption within one turn.
//
// Thread Safety: Safe for concurrent use via mutex. Concurrent tool calls
// within a turn share the same budget and each consumes from it.
type TurnBudget struct {
	mu        sync.Mutex
	policy    Policy
	started   time.Time
	callsUsed int
}

// BudgetStatus is a point-in-time view of the budget for logging and for
// the guardrail block of a turn result.
type BudgetStatus struct {
	ToolCallsUsed  int   `json:"tool_calls_used"`
	ToolCallsLimit int   `json:"tool_calls_limit"`
	WallClockMS    int64 `json:"wall_clock_ms"`
	WallClockLimit int64 `json:"wall_clock_limit_ms"`
}

// NewTurnBudget creates a budget anchored at the turn start time.
func NewTurnBudget(policy Policy, started time.Time) *TurnBudget {
	return &TurnBudget{
		policy:  policy,
		started: started,
	}
}

// Policy returns the read-only policy this budget enforces.
func (b *TurnBudget) Policy() Policy {
	return b.policy
}

// TryConsumeCall reserves one tool call against the budget. It fails when
// the call cap is reached or the wall-clock deadline has passed, without
// consuming anything.
func (b *TurnBudget) TryConsumeCall(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.callsUsed >= b.policy.MaxToolCallsPerTurn {
		return ErrBudgetExhausted
	}
	if !now.Before(b.deadlineLocked()) {
		return ErrBudgetExhausted
	}
	b.callsUsed++
	return nil
}

// Deadline returns the absolute wall-clock deadline for the turn.
func (b *TurnBudget) Deadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deadlineLocked()
}

func (b *TurnBudget) deadlineLocked() time.Time {
	return b.started.Add(b.policy.WallClockBudget)
}

// Exhausted reports whether no further calls may be attempted.
func (b *TurnBudget) Exhausted(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callsUsed >= b.policy.MaxToolCallsPerTurn || !now.Before(b.deadlineLocked())
}

// Status returns the current budget state.
func (b *TurnBudget) Status(now time.Time) BudgetStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.started).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return BudgetStatus{
		ToolCallsUsed:  b.callsUsed,
		ToolCallsLimit: b.policy.MaxToolCallsPerTurn,
		WallClockMS:    elapsed,
		WallClockLimit: b.policy.WallClockBudget.Milliseconds(),
	}
}
