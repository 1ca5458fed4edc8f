// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware holds gin middleware shared by the agent routes.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the shared secret for administrative routes.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken guards import and delete routes with a shared token.
// An empty configured token leaves the routes open, which is only sane in
// local development, so it logs a warning once at setup time.
func RequireAdminToken(token string) gin.HandlerFunc {
	if token == "" {
		slog.Warn("Admin token is not configured, administrative routes are unprotected")
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			slog.Warn("Rejected request with missing or invalid admin token",
				"path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
