// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL  string
	adminToken string
	sessionID  string
	tenantID   string
	userID     string

	rootCmd = &cobra.Command{
		Use:   "stayctl",
		Short: "A cli to talk to the Harborstay concierge agent",
		Long: `Stayctl drives the concierge agent over HTTP: run booking
conversations, inspect session snapshots, and administer stored sessions.`,
	}

	chatCmd = &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the agent (omit the message for an interactive session)",
		Run:   runChatCommand,
	}

	sessionCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and administer stored sessions",
	}

	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		Run:   runSessionListCommand,
	}

	sessionShowCmd = &cobra.Command{
		Use:   "show [session-id]",
		Short: "Print the full snapshot for one session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionShowCommand,
	}

	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a stored session (requires the admin token)",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionDeleteCommand,
	}

	sessionImportCmd = &cobra.Command{
		Use:   "import [snapshot.json]",
		Short: "Import a session snapshot from a JSON export (requires the admin token)",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionImportCommand,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("STAYCTL_SERVER", "http://localhost:12310"),
		"Base URL of the concierge agent")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token",
		os.Getenv("STAYCTL_ADMIN_TOKEN"),
		"Admin token for import and delete operations")

	chatCmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session")
	chatCmd.Flags().StringVar(&tenantID, "tenant", envOr("STAYCTL_TENANT", "default"), "Tenant identifier")
	chatCmd.Flags().StringVar(&userID, "user", envOr("STAYCTL_USER", "stayctl"), "User identifier")
	rootCmd.AddCommand(chatCmd)

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionImportCmd)
	rootCmd.AddCommand(sessionCmd)
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
