// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the session state machine: given a user message
// and the current snapshot it decides the next agent state, which tools to
// call, and the resulting assistant message and updated snapshot.
package engine

import (
	"fmt"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

// validTransitions is the explicit transition table. A state maps to the
// set of states one turn may move it to. Staying in place is always legal.
var validTransitions = map[datatypes.AgentState][]datatypes.AgentState{
	datatypes.StateInit: {
		datatypes.StateCollectingConstraints,
		datatypes.StateSearching,
		datatypes.StateWaitForSelection,
		datatypes.StateCancelled,
	},
	datatypes.StateCollectingConstraints: {
		datatypes.StateInit,
		datatypes.StateSearching,
		datatypes.StateWaitForSelection,
		datatypes.StateCancelled,
	},
	datatypes.StateSearching: {
		datatypes.StateCollectingConstraints,
		datatypes.StateWaitForSelection,
		datatypes.StateFailed,
		datatypes.StateCancelled,
	},
	datatypes.StateWaitForSelection: {
		datatypes.StateInit,
		datatypes.StateCollectingConstraints,
		datatypes.StateSearching,
		datatypes.StateConfirming,
		datatypes.StateConfirmed,
		datatypes.StateFailed,
		datatypes.StateCancelled,
	},
	datatypes.StateConfirming: {
		datatypes.StateInit,
		datatypes.StateWaitForSelection,
		datatypes.StateConfirmed,
		datatypes.StateFailed,
		datatypes.StateCancelled,
	},
	// Terminal states transition nowhere.
	datatypes.StateConfirmed: {},
	datatypes.StateFailed:    {},
	datatypes.StateCancelled: {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to datatypes.AgentState) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition validates and applies a state change on the snapshot. An
// illegal transition is a programming error and is returned as such rather
// than applied.
func transition(snap *datatypes.Snapshot, to datatypes.AgentState) error {
	if !CanTransition(snap.AgentState, to) {
		return fmt.Errorf("illegal state transition %s -> %s", snap.AgentState, to)
	}
	snap.AgentState = to
	return nil
}
