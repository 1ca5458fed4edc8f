// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrails

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

// Grounding validation: any price or timestamp the reasoning capability puts
// into user-visible text must come from tool data. The core never fabricates
// a number the tools did not return.

var (
	priceRe     = regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{1,2})?`)
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:\d{2})?`)
)

// GroundingFinding is one ungrounded value found in candidate text.
type GroundingFinding struct {
	Kind  string `json:"kind"` // "price" or "timestamp"
	Value string `json:"value"`
}

// GroundingSet is the set of tool-provided values text may legitimately cite.
type GroundingSet struct {
	prices     map[string]bool
	timestamps map[string]bool
}

// NewGroundingSet collects the citable values from the offers currently on
// the table.
func NewGroundingSet(offers []datatypes.OfferCard) *GroundingSet {
	gs := &GroundingSet{
		prices:     map[string]bool{},
		timestamps: map[string]bool{},
	}
	for _, card := range offers {
		gs.addPrice(card.TotalPrice)
		gs.addPrice(card.TaxesTotal)
		gs.addPrice(card.FeesTotal)
		gs.addTimestamp(card.ExpiresTS)
		gs.addTimestamp(card.LastPricedTS)
		gs.addTimestamp(card.CancellationDeadline)
	}
	return gs
}

func (g *GroundingSet) addPrice(v float64) {
	if v <= 0 {
		return
	}
	// Register both rendering styles so "$199" and "$199.00" both pass.
	g.prices[fmt.Sprintf("$%.2f", v)] = true
	if v == float64(int64(v)) {
		g.prices[fmt.Sprintf("$%d", int64(v))] = true
	}
}

func (g *GroundingSet) addTimestamp(ts string) {
	if ts == "" {
		return
	}
	g.timestamps[ts] = true
	// Allow the seconds-truncated form too.
	if len(ts) >= 16 {
		g.timestamps[ts[:16]] = true
	}
}

// Validate scans text for prices and timestamps and returns every value not
// present in the grounding set. An empty result means the text is grounded.
func (g *GroundingSet) Validate(text string) []GroundingFinding {
	var findings []GroundingFinding

	for _, m := range priceRe.FindAllString(text, -1) {
		if !g.prices[strings.ReplaceAll(m, ",", "")] {
			findings = append(findings, GroundingFinding{Kind: "price", Value: m})
		}
	}
	for _, m := range timestampRe.FindAllString(text, -1) {
		if !g.timestamps[m] && !g.timestamps[strings.TrimSuffix(m, "Z")] {
			findings = append(findings, GroundingFinding{Kind: "timestamp", Value: m})
		}
	}
	return findings
}
