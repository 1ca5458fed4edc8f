// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/harborstay/concierge/services/agent/datatypes"
	"github.com/harborstay/concierge/services/agent/store"
)

// maxSessionListLimit bounds the list endpoint regardless of what the
// caller asks for.
const maxSessionListLimit = 200

var sessionValidate = validator.New()

// ListSessions returns session heads, newest first.
func ListSessions(st store.SnapshotStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxSessionListLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			if parsed < limit {
				limit = parsed
			}
		}

		heads, err := st.List(c.Request.Context(), limit)
		if err != nil {
			slog.Error("Failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": heads, "count": len(heads)})
	}
}

// GetSession returns the full snapshot for one session.
func GetSession(st store.SnapshotStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		snap, err := st.Load(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("Failed to load session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// DeleteSession removes a session snapshot. Deleting a session that does
// not exist is not an error.
func DeleteSession(st store.SnapshotStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "session_id", sessionID)

		if err := st.Delete(c.Request.Context(), sessionID); err != nil {
			slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}

// ImportSessionRequest is the wire shape for restoring a snapshot from an
// exported copy. Everything meaningful for resuming a conversation rides
// inside Snapshot; the struct tags enforce the identity fields.
type ImportSessionRequest struct {
	Snapshot datatypes.Snapshot `json:"snapshot" binding:"required"`
}

// ImportSession restores a session snapshot wholesale. The agent state is
// validated against the known state set; an unrecognized value rejects the
// import rather than loading a session the machine cannot drive.
func ImportSession(st store.SnapshotStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ImportSessionRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("Failed to parse the import request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		snap := req.Snapshot
		if err := sessionValidate.Struct(importConstraints{
			SessionID: snap.SessionID,
			TenantID:  snap.TenantID,
		}); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and tenant_id are required"})
			return
		}
		if _, err := datatypes.ParseAgentState(string(snap.AgentState)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if snap.UpdatedAt.IsZero() {
			snap.UpdatedAt = time.Now().UTC()
		}
		if err := st.Import(c.Request.Context(), &snap); err != nil {
			slog.Error("Failed to import session", "session_id", snap.SessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import session"})
			return
		}

		slog.Info("Imported session snapshot",
			"session_id", snap.SessionID, "agent_state", snap.AgentState)
		c.JSON(http.StatusOK, gin.H{"status": "success", "session_id": snap.SessionID})
	}
}

type importConstraints struct {
	SessionID string `validate:"required"`
	TenantID  string `validate:"required"`
}
