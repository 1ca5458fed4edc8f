// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborstay/concierge/services/agent/engine"
	"github.com/harborstay/concierge/services/agent/handlers"
	"github.com/harborstay/concierge/services/agent/middleware"
	"github.com/harborstay/concierge/services/agent/store"
)

func SetupRoutes(router *gin.Engine, eng *engine.Engine, st store.SnapshotStore, adminToken string) {

	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(eng))
		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(st))
			sessions.GET("/:sessionId", handlers.GetSession(st))
			admin := sessions.Group("", middleware.RequireAdminToken(adminToken))
			{
				admin.POST("/import", handlers.ImportSession(st))
				admin.DELETE("/:sessionId", handlers.DeleteSession(st))
			}
		}
	}
}
