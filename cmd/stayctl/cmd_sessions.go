// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func runSessionListCommand(cmd *cobra.Command, args []string) {
	client := newAgentClient(serverURL, adminToken)

	heads, err := client.ListSessions()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if len(heads) == 0 {
		fmt.Println("No stored sessions.")
		return
	}
	for _, h := range heads {
		fmt.Printf("%s  %s\n", h.UpdatedAt.Format("2006-01-02 15:04:05"), h.SessionID)
	}
}

func runSessionShowCommand(cmd *cobra.Command, args []string) {
	client := newAgentClient(serverURL, adminToken)

	raw, err := client.GetSession(args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	var pretty json.RawMessage = raw
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(out))
}

func runSessionDeleteCommand(cmd *cobra.Command, args []string) {
	client := newAgentClient(serverURL, adminToken)

	if err := client.DeleteSession(args[0]); err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Deleted session %s\n", args[0])
}

func runSessionImportCommand(cmd *cobra.Command, args []string) {
	client := newAgentClient(serverURL, adminToken)

	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading %s: %v", args[0], err)
	}

	sessionID, err := client.ImportSession(data)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Imported session %s\n", sessionID)
}
