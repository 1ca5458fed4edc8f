// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command agent starts the Harborstay concierge HTTP server.
//
// This is the main entry point for the containerized agent service. It
// reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - AGENT_PORT: HTTP server port (default: 12310)
//   - LOG_LEVEL: minimum log level, debug|info|warn|error (default: info)
//   - LOG_DIR: directory for JSON log files (empty = stderr only)
//   - TOOLS_BASE_URL: booking tools backend base URL (default: http://localhost:12320)
//   - TOOL_REGISTRY_PATH: YAML tool registry override (optional)
//   - AGENT_DATA_DIR: Badger snapshot store directory (empty = in-memory)
//   - AGENT_ADMIN_TOKEN: shared secret for admin routes (optional)
//   - AGENT_ENABLE_METRICS: enable Prometheus metric collection (default: true)
//   - AGENT_SWEEP_ENABLED: enable the session retention sweeper (default: false)
//   - AGENT_SESSION_RETENTION_HOURS: retention window for the sweeper (default: 720)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: harborstay-otel-collector:4317)
//   - REASONING_MODEL: interpreter model name (default: gpt-4o-mini)
//   - REASONING_BASE_URL: OpenAI-compatible endpoint override (optional)
//   - OPENAI_API_KEY: interpreter API key
//
// # Usage
//
//	# Build
//	go build -o agent ./cmd/agent
//
//	# Run
//	./agent
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/harborstay/concierge/pkg/logging"
	"github.com/harborstay/concierge/services/agent"
	"github.com/harborstay/concierge/services/reasoning"
)

func main() {
	// Setup structured logging
	closeLogs := logging.Setup(logging.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "concierge-agent",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer closeLogs()

	// Build configuration from environment variables
	cfg := agent.Config{
		Port:             getEnvInt("AGENT_PORT", 12310),
		ToolsBaseURL:     getEnvString("TOOLS_BASE_URL", "http://localhost:12320"),
		ToolRegistryPath: os.Getenv("TOOL_REGISTRY_PATH"),
		DataDir:          os.Getenv("AGENT_DATA_DIR"),
		AdminToken:       os.Getenv("AGENT_ADMIN_TOKEN"),
		OTelEndpoint:     getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "harborstay-otel-collector:4317"),
		EnableMetrics:    getEnvBool("AGENT_ENABLE_METRICS", true),
		SweepEnabled:     getEnvBool("AGENT_SWEEP_ENABLED", false),
		SessionRetention: time.Duration(getEnvInt("AGENT_SESSION_RETENTION_HOURS", 720)) * time.Hour,
		Reasoning: reasoning.OpenAIConfig{
			Model:   os.Getenv("REASONING_MODEL"),
			BaseURL: os.Getenv("REASONING_BASE_URL"),
		},
	}

	slog.Info("Starting concierge agent",
		"port", cfg.Port,
		"tools_base_url", cfg.ToolsBaseURL,
		"data_dir", cfg.DataDir,
	)

	svc, err := agent.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Agent error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
