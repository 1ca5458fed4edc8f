// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the persisted and wire-level types shared by the
// agent service: session snapshots, booking constraints, offers, and the tool
// timeline records attached to every turn.
package datatypes

import "fmt"

// AgentState is the session state machine state, stored on the snapshot and
// echoed in every turn result.
type AgentState string

const (
	// StateInit is the only initial state. No constraints collected yet.
	StateInit AgentState = "INIT"

	// StateCollectingConstraints means required search fields are still missing.
	StateCollectingConstraints AgentState = "COLLECTING_CONSTRAINTS"

	// StateSearching means the search pipeline is running for this turn.
	StateSearching AgentState = "SEARCHING"

	// StateWaitForSelection means offers were presented and a pick is awaited.
	StateWaitForSelection AgentState = "WAIT_FOR_SELECTION"

	// StateConfirming means a selected offer is being re-verified.
	StateConfirming AgentState = "CONFIRMING"

	// StateConfirmed is terminal success.
	StateConfirmed AgentState = "CONFIRMED"

	// StateFailed is terminal, unrecoverable turn-level error.
	StateFailed AgentState = "FAILED"

	// StateCancelled is terminal, user abandoned the session.
	StateCancelled AgentState = "CANCELLED"
)

// AllStates is the complete state set, used by import validation.
var AllStates = []AgentState{
	StateInit,
	StateCollectingConstraints,
	StateSearching,
	StateWaitForSelection,
	StateConfirming,
	StateConfirmed,
	StateFailed,
	StateCancelled,
}

// IsTerminal reports whether no further tool calls may be issued from s.
func (s AgentState) IsTerminal() bool {
	switch s {
	case StateConfirmed, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a member of the known state set.
func (s AgentState) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// ParseAgentState validates a raw state string against the known state set.
// Unknown states are rejected, never coerced to a default.
func ParseAgentState(raw string) (AgentState, error) {
	s := AgentState(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown agent state %q", raw)
	}
	return s, nil
}

// CallStatus is the outcome of one logical tool invocation.
type CallStatus string

const (
	// CallOK means the tool responded successfully.
	CallOK CallStatus = "ok"

	// CallError means a non-retryable failure or exhausted retries on a
	// retryable failure class other than timeout.
	CallError CallStatus = "error"

	// CallTimeout means the per-call timeout elapsed on the final attempt.
	CallTimeout CallStatus = "timeout"

	// CallBudgetExceeded means the turn budget was exhausted before the call
	// could be attempted. This is a deliberate degradation, not a tool error.
	CallBudgetExceeded CallStatus = "budget_exceeded"
)
