// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/concierge/services/agent/datatypes"
	"github.com/harborstay/concierge/services/agent/engine"
	"github.com/harborstay/concierge/services/agent/middleware"
	"github.com/harborstay/concierge/services/agent/store"
	"github.com/harborstay/concierge/services/agent/tools"
	"github.com/harborstay/concierge/services/reasoning"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// clarifyInterpreter always extracts just a city, leaving the required
// dates and occupancy missing so no tool calls are made.
type clarifyInterpreter struct{}

func (clarifyInterpreter) Interpret(_ context.Context, _ string, _ datatypes.Constraints) (reasoning.Interpretation, error) {
	city := "Lisbon"
	return reasoning.Interpretation{
		Intent: reasoning.IntentProvideInfo,
		Delta:  datatypes.ConstraintDelta{City: &city},
	}, nil
}

func newTestRouter(t *testing.T, adminToken string) (*gin.Engine, store.SnapshotStore) {
	t.Helper()

	// The clarify path never reaches the tool backend, but the dispatcher
	// still needs a live base URL to be constructed against.
	backend := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(backend.Close)

	registry, err := tools.NewRegistry("")
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	dispatcher := tools.NewDispatcher(registry, tools.DispatcherConfig{BaseURL: backend.URL}, nil)

	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := engine.New(st, dispatcher, clarifyInterpreter{}, engine.Config{}, nil)

	router := gin.New()
	SetupRoutes(router, eng, st, adminToken)
	return router, st
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedSnapshot(t *testing.T, st store.SnapshotStore, sessionID string, updatedAt time.Time) {
	t.Helper()
	snap := datatypes.NewSnapshot(sessionID, "tenant-1", "user-1")
	snap.UpdatedAt = updatedAt
	require.NoError(t, st.Import(context.Background(), snap))
}

// ============================================================================
// Core Routes
// ============================================================================

func TestHealthzRoute(t *testing.T) {
	router, _ := newTestRouter(t, "")
	w := doJSON(router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsRoute(t *testing.T) {
	router, _ := newTestRouter(t, "")
	w := doJSON(router, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// ============================================================================
// Chat Route
// ============================================================================

func TestChatRejectsInvalidBody(t *testing.T) {
	router, _ := newTestRouter(t, "")

	w := doJSON(router, http.MethodPost, "/v1/chat", map[string]string{
		"tenant_id": "tenant-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestChatRunsTurn(t *testing.T) {
	router, st := newTestRouter(t, "")

	w := doJSON(router, http.MethodPost, "/v1/chat", map[string]string{
		"tenant_id": "tenant-1",
		"user_id":   "user-1",
		"message":   "somewhere in Lisbon",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, datatypes.StateCollectingConstraints, result.AgentState)
	assert.NotEmpty(t, result.SessionID)
	assert.NotEmpty(t, result.AssistantMessage)

	// The turn was persisted and is visible through the session surface.
	snap, err := st.Load(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Len(t, snap.Turns, 1)
}

// ============================================================================
// Session Routes
// ============================================================================

func TestSessionListAndGet(t *testing.T) {
	router, st := newTestRouter(t, "")
	base := time.Now().UTC().Truncate(time.Second)
	seedSnapshot(t, st, "sess-old", base.Add(-time.Hour))
	seedSnapshot(t, st, "sess-new", base)

	w := doJSON(router, http.MethodGet, "/v1/sessions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Sessions []store.SessionHead `json:"sessions"`
		Count    int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "sess-new", list.Sessions[0].SessionID, "newest first")

	w = doJSON(router, http.MethodGet, "/v1/sessions?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = doJSON(router, http.MethodGet, "/v1/sessions?limit=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/sessions/sess-old", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap datatypes.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "sess-old", snap.SessionID)

	w = doJSON(router, http.MethodGet, "/v1/sessions/no-such-session", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionImportValidation(t *testing.T) {
	router, _ := newTestRouter(t, "")

	tests := []struct {
		name string
		snap datatypes.Snapshot
	}{
		{
			name: "missing tenant id",
			snap: datatypes.Snapshot{SessionID: "sess-1", AgentState: datatypes.StateInit},
		},
		{
			name: "missing session id",
			snap: datatypes.Snapshot{TenantID: "tenant-1", AgentState: datatypes.StateInit},
		},
		{
			name: "unknown agent state",
			snap: datatypes.Snapshot{SessionID: "sess-1", TenantID: "tenant-1", AgentState: "NAPPING"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/v1/sessions/import",
				map[string]any{"snapshot": tt.snap}, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSessionImportRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t, "")

	snap := datatypes.NewSnapshot("sess-imported", "tenant-1", "user-1")
	snap.AgentState = datatypes.StateWaitForSelection

	w := doJSON(router, http.MethodPost, "/v1/sessions/import",
		map[string]any{"snapshot": snap}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, "/v1/sessions/sess-imported", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var restored datatypes.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restored))
	assert.Equal(t, datatypes.StateWaitForSelection, restored.AgentState)
}

func TestSessionDelete(t *testing.T) {
	router, st := newTestRouter(t, "")
	seedSnapshot(t, st, "sess-doomed", time.Now().UTC())

	w := doJSON(router, http.MethodDelete, "/v1/sessions/sess-doomed", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := st.Load(context.Background(), "sess-doomed")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting again is idempotent.
	w = doJSON(router, http.MethodDelete, "/v1/sessions/sess-doomed", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// ============================================================================
// Admin Token Enforcement
// ============================================================================

func TestAdminRoutesRequireToken(t *testing.T) {
	router, st := newTestRouter(t, "hunter2")
	seedSnapshot(t, st, "sess-guarded", time.Now().UTC())

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/v1/sessions/sess-guarded"},
		{http.MethodPost, "/v1/sessions/import"},
	} {
		t.Run(fmt.Sprintf("%s %s", tc.method, tc.path), func(t *testing.T) {
			w := doJSON(router, tc.method, tc.path, map[string]any{}, nil)
			assert.Equal(t, http.StatusForbidden, w.Code, "no token")

			w = doJSON(router, tc.method, tc.path, map[string]any{},
				map[string]string{middleware.AdminTokenHeader: "wrong"})
			assert.Equal(t, http.StatusForbidden, w.Code, "wrong token")
		})
	}

	// The correct token passes through to the handler.
	w := doJSON(router, http.MethodDelete, "/v1/sessions/sess-guarded",
		nil, map[string]string{middleware.AdminTokenHeader: "hunter2"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Read routes stay open without a token.
	w = doJSON(router, http.MethodGet, "/v1/sessions", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
