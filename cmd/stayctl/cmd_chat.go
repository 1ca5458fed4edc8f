// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

func runChatCommand(cmd *cobra.Command, args []string) {
	client := newAgentClient(serverURL, adminToken)

	if len(args) > 0 {
		message := strings.Join(args, " ")
		resp, err := client.Chat(sessionID, tenantID, userID, message)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		printTurn(resp)
		return
	}

	// Interactive mode: one session across the whole conversation.
	fmt.Println("Connected. Type your message, or 'quit' to leave.")
	scanner := bufio.NewScanner(os.Stdin)
	current := sessionID
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		resp, err := client.Chat(current, tenantID, userID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		current = resp.SessionID
		printTurn(resp)
	}
	if current != "" {
		fmt.Printf("\nSession: %s\n", current)
	}
}

func printTurn(resp *ChatResponse) {
	fmt.Printf("\n[%s]\n%s\n", resp.AgentState, resp.AssistantMessage)
	if len(resp.ToolTimeline) > 0 {
		fmt.Println("\nTool calls:")
		for i, ev := range resp.ToolTimeline {
			fmt.Printf("%d. %s %s %dms", i+1, ev.ToolName, ev.Status, ev.LatencyMS)
			if ev.Retries > 0 {
				fmt.Printf(" (%d retries)", ev.Retries)
			}
			fmt.Println()
		}
	}
}

// ChatResponse mirrors the agent's turn result.
type ChatResponse struct {
	SessionID         string                `json:"session_id"`
	TraceID           string                `json:"trace_id"`
	AgentState        string                `json:"agent_state"`
	AssistantMessage  string                `json:"assistant_message"`
	RecommendedOffers []datatypes.OfferCard `json:"recommended_offers,omitempty"`
	ToolTimeline      []datatypes.ToolEvent `json:"tool_timeline,omitempty"`
}
