// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

func newTestStore(t *testing.T) SnapshotStore {
	t.Helper()
	st, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testSnapshot(sessionID string, updated time.Time) *datatypes.Snapshot {
	snap := datatypes.NewSnapshot(sessionID, "tenant-1", "user-1")
	snap.UpdatedAt = updated
	return snap
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	snap := testSnapshot("sess-1", now)
	snap.AgentState = datatypes.StateWaitForSelection
	snap.Constraints.City = "Lisbon"
	snap.AppendTurn(datatypes.TurnRecord{
		UserMessage:      "hotels in lisbon",
		AssistantMessage: "Here are some options.",
		AgentState:       datatypes.StateWaitForSelection,
		TraceID:          "trace-1",
		ToolTimeline: []datatypes.ToolEvent{
			{ToolName: "search_candidates", Status: datatypes.CallOK, LatencyMS: 42},
		},
	})

	require.NoError(t, st.Save(ctx, snap, time.Time{}))

	loaded, err := st.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StateWaitForSelection, loaded.AgentState)
	assert.Equal(t, "Lisbon", loaded.Constraints.City)
	require.Len(t, loaded.Turns, 1)
	assert.Equal(t, "trace-1", loaded.Turns[0].TraceID)
	require.Len(t, loaded.Turns[0].ToolTimeline, 1)
	assert.Equal(t, datatypes.CallOK, loaded.Turns[0].ToolTimeline[0].Status)
	assert.True(t, loaded.UpdatedAt.Equal(now))
}

func TestLoadMissing(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveVersionCheck(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t0 := time.Now().UTC().Truncate(time.Millisecond)
	snap := testSnapshot("sess-1", t0)
	require.NoError(t, st.Save(ctx, snap, time.Time{}))

	t.Run("matching expected version saves", func(t *testing.T) {
		next := testSnapshot("sess-1", t0.Add(time.Second))
		next.Constraints.City = "Porto"
		require.NoError(t, st.Save(ctx, next, t0))

		loaded, err := st.Load(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "Porto", loaded.Constraints.City)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		stale := testSnapshot("sess-1", t0.Add(2*time.Second))
		err := st.Save(ctx, stale, t0)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("nonzero expected on a missing session conflicts", func(t *testing.T) {
		snap := testSnapshot("sess-other", t0)
		err := st.Save(ctx, snap, t0)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("zero expected on an existing session conflicts", func(t *testing.T) {
		again := testSnapshot("sess-1", t0.Add(3*time.Second))
		err := st.Save(ctx, again, time.Time{})
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestImportOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t0 := time.Now().UTC()
	snap := testSnapshot("sess-1", t0)
	require.NoError(t, st.Save(ctx, snap, time.Time{}))

	restored := testSnapshot("sess-1", t0.Add(time.Hour))
	restored.AgentState = datatypes.StateConfirmed
	require.NoError(t, st.Import(ctx, restored))

	loaded, err := st.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StateConfirmed, loaded.AgentState)
}

func TestListNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, st.Save(ctx, testSnapshot("sess-old", base.Add(-2*time.Hour)), time.Time{}))
	require.NoError(t, st.Save(ctx, testSnapshot("sess-new", base), time.Time{}))
	require.NoError(t, st.Save(ctx, testSnapshot("sess-mid", base.Add(-time.Hour)), time.Time{}))

	heads, err := st.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, heads, 3)
	assert.Equal(t, "sess-new", heads[0].SessionID)
	assert.Equal(t, "sess-mid", heads[1].SessionID)
	assert.Equal(t, "sess-old", heads[2].SessionID)

	limited, err := st.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "sess-new", limited[0].SessionID)
}

func TestDeleteIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, testSnapshot("sess-1", time.Now().UTC()), time.Time{}))
	require.NoError(t, st.Delete(ctx, "sess-1"))

	_, err := st.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, st.Delete(ctx, "sess-1"))
	assert.NoError(t, st.Delete(ctx, "never-existed"))
}

func TestSweepDeletesExpiredSessions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.Save(ctx, testSnapshot("sess-stale", now.Add(-48*time.Hour)), time.Time{}))
	require.NoError(t, st.Save(ctx, testSnapshot("sess-fresh", now), time.Time{}))

	sweeper := NewSweeper(st, SweeperConfig{
		Interval:  time.Hour,
		Retention: 24 * time.Hour,
	})
	sweeper.sweep(ctx)

	_, err := st.Load(ctx, "sess-stale")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Load(ctx, "sess-fresh")
	assert.NoError(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	st := newTestStore(t)

	sweeper := NewSweeper(st, SweeperConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, sweeper.Start(context.Background()))
	assert.Error(t, sweeper.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
	// Stop is safe to call twice.
	sweeper.Stop()
}
