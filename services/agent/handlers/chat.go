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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/harborstay/concierge/services/agent/engine"
)

var chatTracer = otel.Tracer("harborstay.agent.handlers")

type ChatRequest struct {
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// HandleChat runs one conversational turn through the engine.
func HandleChat(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := eng.HandleTurn(ctx, engine.TurnRequest{
			SessionID: req.SessionID,
			TenantID:  req.TenantID,
			UserID:    req.UserID,
			Message:   req.Message,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, engine.ErrConflict) {
				slog.Warn("Turn lost the session save race", "session_id", req.SessionID)
				c.JSON(http.StatusConflict, gin.H{
					"error": "session was modified concurrently, retry the message",
				})
				return
			}
			slog.Error("Turn execution failed", "session_id", req.SessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "turn failed"})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
