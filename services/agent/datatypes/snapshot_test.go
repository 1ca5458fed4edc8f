// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot("sess-1", "tenant-1", "alice@example.com")

	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, StateInit, snap.AgentState)
	assert.Equal(t, "USD", snap.Constraints.Currency)

	// Raw identity must never be stored.
	assert.NotEqual(t, "alice@example.com", snap.UserIDHash)
	assert.Len(t, snap.UserIDHash, 64)
	assert.Equal(t, HashUserID("alice@example.com"), snap.UserIDHash)
}

func TestAppendTurnCapsHistory(t *testing.T) {
	snap := NewSnapshot("sess-1", "tenant-1", "u")

	for i := 0; i < MaxTurnsRetained+7; i++ {
		snap.AppendTurn(TurnRecord{UserMessage: fmt.Sprintf("msg %d", i)})
	}

	require.Len(t, snap.Turns, MaxTurnsRetained)
	// Oldest turns are dropped, newest kept.
	assert.Equal(t, "msg 7", snap.Turns[0].UserMessage)
	assert.Equal(t, fmt.Sprintf("msg %d", MaxTurnsRetained+6),
		snap.Turns[len(snap.Turns)-1].UserMessage)
}

func TestPushTraceIDEvictsOldest(t *testing.T) {
	snap := NewSnapshot("sess-1", "tenant-1", "u")

	for i := 0; i < TraceRingCapacity+3; i++ {
		snap.PushTraceID(fmt.Sprintf("trace-%d", i))
	}

	require.Len(t, snap.RecentTraceIDs, TraceRingCapacity)
	assert.Equal(t, "trace-3", snap.RecentTraceIDs[0])
	assert.Equal(t, fmt.Sprintf("trace-%d", TraceRingCapacity+2),
		snap.RecentTraceIDs[len(snap.RecentTraceIDs)-1])
}

func TestInvalidateToolState(t *testing.T) {
	snap := NewSnapshot("sess-1", "tenant-1", "u")
	snap.ToolConstraintsKey = "abc"
	snap.CandidateHotels = []CandidateHotel{{HotelID: "h1"}}
	snap.RecommendedOffers = []OfferCard{{Offer: Offer{OfferID: "o1"}}}
	snap.SelectedOfferID = "o1"

	snap.InvalidateToolState()

	assert.Empty(t, snap.ToolConstraintsKey)
	assert.Empty(t, snap.CandidateHotels)
	assert.Empty(t, snap.RecommendedOffers)
	assert.Empty(t, snap.SelectedOfferID)
}

func TestParseAgentState(t *testing.T) {
	for _, state := range AllStates {
		parsed, err := ParseAgentState(string(state))
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}

	_, err := ParseAgentState("NAPPING")
	assert.Error(t, err)

	_, err = ParseAgentState("")
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StateConfirmed.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())

	assert.False(t, StateInit.IsTerminal())
	assert.False(t, StateSearching.IsTerminal())
	assert.False(t, StateWaitForSelection.IsTerminal())
}
