// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// agentClient is a thin HTTP client over the agent's v1 API.
type agentClient struct {
	baseURL    string
	adminToken string
	http       *http.Client
}

func newAgentClient(baseURL, adminToken string) *agentClient {
	return &agentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

func (c *agentClient) Chat(sessionID, tenantID, userID, message string) (*ChatResponse, error) {
	body, err := json.Marshal(chatRequest{
		SessionID: sessionID,
		TenantID:  tenantID,
		UserID:    userID,
		Message:   message,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.do(http.MethodPost, "/v1/chat", body, false)
	if err != nil {
		return nil, err
	}
	var resp ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	return &resp, nil
}

type sessionHead struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *agentClient) ListSessions() ([]sessionHead, error) {
	raw, err := c.do(http.MethodGet, "/v1/sessions", nil, false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Sessions []sessionHead `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding session list: %w", err)
	}
	return resp.Sessions, nil
}

func (c *agentClient) GetSession(sessionID string) (json.RawMessage, error) {
	return c.do(http.MethodGet, "/v1/sessions/"+sessionID, nil, false)
}

func (c *agentClient) DeleteSession(sessionID string) error {
	_, err := c.do(http.MethodDelete, "/v1/sessions/"+sessionID, nil, true)
	return err
}

func (c *agentClient) ImportSession(snapshot []byte) (string, error) {
	body, err := json.Marshal(map[string]json.RawMessage{
		"snapshot": snapshot,
	})
	if err != nil {
		return "", err
	}

	raw, err := c.do(http.MethodPost, "/v1/sessions/import", body, true)
	if err != nil {
		return "", err
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding import response: %w", err)
	}
	return resp.SessionID, nil
}

func (c *agentClient) do(method, path string, body []byte, admin bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.adminToken != "" {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return raw, nil
}
