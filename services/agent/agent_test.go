// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyConfigDefaults(t *testing.T) {
	t.Run("zero config gets defaults with sweeper and metrics off", func(t *testing.T) {
		cfg := applyConfigDefaults(Config{})

		assert.Equal(t, 12310, cfg.Port)
		assert.Equal(t, "http://localhost:12320", cfg.ToolsBaseURL)
		assert.Equal(t, time.Hour, cfg.SweepInterval)
		assert.Equal(t, 720*time.Hour, cfg.SessionRetention)
		assert.Equal(t, 50.0, cfg.ToolRequestsPerSecond)

		// Opt-in features stay off unless the caller asks for them.
		assert.False(t, cfg.SweepEnabled)
		assert.False(t, cfg.EnableMetrics)
	})

	t.Run("caller values are honored", func(t *testing.T) {
		cfg := applyConfigDefaults(Config{
			Port:             9000,
			EnableMetrics:    true,
			SweepEnabled:     true,
			SessionRetention: 24 * time.Hour,
		})

		assert.Equal(t, 9000, cfg.Port)
		assert.True(t, cfg.EnableMetrics)
		assert.True(t, cfg.SweepEnabled)
		assert.Equal(t, 24*time.Hour, cfg.SessionRetention)
	})
}
