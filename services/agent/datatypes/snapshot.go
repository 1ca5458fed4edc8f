// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// MaxTurnsRetained bounds the turn history carried in a snapshot.
	// Older turns are dropped from the snapshot, never rewritten in place.
	MaxTurnsRetained = 50

	// TraceRingCapacity bounds recent_trace_ids. Oldest evicted first.
	TraceRingCapacity = 10
)

// ToolEvent is one timeline entry: the record of one logical tool
// invocation, including all retries of the same call.
type ToolEvent struct {
	ToolName      string         `json:"tool_name"`
	Path          string         `json:"path,omitempty"`
	URL           string         `json:"url,omitempty"`
	Status        CallStatus     `json:"status"`
	LatencyMS     int64          `json:"latency_ms"`
	Retries       int            `json:"retries"`
	Payload       string         `json:"payload,omitempty"`
	ResultCounts  map[string]int `json:"result_counts,omitempty"`
	ResponseKeys  []string       `json:"response_keys,omitempty"`
	ResultPreview string         `json:"result_preview,omitempty"`
}

// TurnRecord is one user-message/assistant-response exchange. Records are
// append-only: a later turn never alters an earlier record.
type TurnRecord struct {
	UserMessage       string      `json:"user_message"`
	AssistantMessage  string      `json:"assistant_message"`
	AgentState        AgentState  `json:"agent_state"`
	ToolTimeline      []ToolEvent `json:"tool_timeline,omitempty"`
	RecommendedOffers []OfferCard `json:"recommended_offers,omitempty"`
	TraceID           string      `json:"trace_id"`
}

// Snapshot is the full persisted state of a session between turns.
// Exclusively owned by the state machine during a turn (single writer),
// shared-read between turns.
type Snapshot struct {
	SessionID  string `json:"session_id"`
	TenantID   string `json:"tenant_id,omitempty"`
	UserIDHash string `json:"user_id_hash,omitempty"`

	AgentState  AgentState  `json:"agent_state"`
	Constraints Constraints `json:"constraints"`

	Turns          []TurnRecord `json:"turns,omitempty"`
	RecentTraceIDs []string     `json:"recent_trace_ids,omitempty"`

	// Pipeline cache, valid only while ToolConstraintsKey matches the
	// current constraint fingerprint.
	ToolConstraintsKey string           `json:"tool_constraints_key,omitempty"`
	CandidateHotels    []CandidateHotel `json:"candidate_hotels,omitempty"`
	RecommendedOffers  []OfferCard      `json:"recommended_offers,omitempty"`

	// SelectedOfferID is set while a selection is in CONFIRMING.
	SelectedOfferID string `json:"selected_offer_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSnapshot creates a fresh snapshot in the initial state.
func NewSnapshot(sessionID, tenantID, userID string) *Snapshot {
	return &Snapshot{
		SessionID:  sessionID,
		TenantID:   tenantID,
		UserIDHash: HashUserID(userID),
		AgentState: StateInit,
		Constraints: Constraints{
			Currency: "USD",
		},
	}
}

// HashUserID returns a stable sha256 hex digest of a raw user identifier.
// The raw identifier is never persisted.
func HashUserID(userID string) string {
	if userID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// AppendTurn appends a turn record and trims the history to the retention
// bound. Existing records are never modified.
func (s *Snapshot) AppendTurn(turn TurnRecord) {
	s.Turns = append(s.Turns, turn)
	if len(s.Turns) > MaxTurnsRetained {
		s.Turns = s.Turns[len(s.Turns)-MaxTurnsRetained:]
	}
}

// PushTraceID pushes a trace id onto the bounded ring. When the ring is at
// capacity the oldest entry is evicted first.
func (s *Snapshot) PushTraceID(traceID string) {
	if traceID == "" {
		return
	}
	s.RecentTraceIDs = append(s.RecentTraceIDs, traceID)
	if len(s.RecentTraceIDs) > TraceRingCapacity {
		s.RecentTraceIDs = s.RecentTraceIDs[len(s.RecentTraceIDs)-TraceRingCapacity:]
	}
}

// InvalidateToolState drops cached candidates, offers, and any pending
// selection. Called when the constraint fingerprint changes mid-session.
func (s *Snapshot) InvalidateToolState() {
	s.ToolConstraintsKey = ""
	s.CandidateHotels = nil
	s.RecommendedOffers = nil
	s.SelectedOfferID = ""
}
