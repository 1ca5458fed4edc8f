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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the wire format for check-in and check-out dates.
const DateLayout = "2006-01-02"

// AllowedAmenities is the amenity vocabulary the tool backend understands.
// Amenity values outside this list are dropped on merge.
var AllowedAmenities = []string{
	"breakfast",
	"gym",
	"parking",
	"pet_friendly",
	"pool",
	"spa",
	"wifi",
}

// Constraints is the accumulated set of booking requirements for a session.
// Fields are refined monotonically across turns: newly stated fields
// overwrite prior ones, unspecified fields persist. Only an explicit reset
// clears them.
type Constraints struct {
	City     string `json:"city,omitempty"`
	CheckIn  string `json:"check_in,omitempty"`
	CheckOut string `json:"check_out,omitempty"`

	Adults   *int `json:"adults,omitempty"`
	Children *int `json:"children,omitempty"`
	Rooms    *int `json:"rooms,omitempty"`

	// Hard filters. An offer violating any of these is never presented.
	MaxPrice       *float64 `json:"max_price,omitempty"`
	MinStar        *int     `json:"min_star,omitempty"`
	Amenities      []string `json:"amenities,omitempty"`
	RefundableOnly *bool    `json:"refundable_only,omitempty"`

	Currency string `json:"currency,omitempty"`
}

// ConstraintDelta is the incremental update produced by interpreting one user
// message. Nil pointer fields mean "not mentioned". Clear lists field names
// the user explicitly removed (for example "no budget limit").
type ConstraintDelta struct {
	City     *string `json:"city,omitempty"`
	CheckIn  *string `json:"check_in,omitempty"`
	CheckOut *string `json:"check_out,omitempty"`

	Adults   *int `json:"adults,omitempty"`
	Children *int `json:"children,omitempty"`
	Rooms    *int `json:"rooms,omitempty"`

	MaxPrice       *float64 `json:"max_price,omitempty"`
	MinStar        *int     `json:"min_star,omitempty"`
	Amenities      []string `json:"amenities,omitempty"`
	RefundableOnly *bool    `json:"refundable_only,omitempty"`

	Currency *string `json:"currency,omitempty"`

	Clear []string `json:"clear,omitempty"`
}

// IsEmpty reports whether the delta carries no changes at all.
func (d ConstraintDelta) IsEmpty() bool {
	return d.City == nil && d.CheckIn == nil && d.CheckOut == nil &&
		d.Adults == nil && d.Children == nil && d.Rooms == nil &&
		d.MaxPrice == nil && d.MinStar == nil && len(d.Amenities) == 0 &&
		d.RefundableOnly == nil && d.Currency == nil && len(d.Clear) == 0
}

// Merge applies a delta to the constraints and returns the merged copy.
//
// Merge policy: stated fields overwrite, unspecified fields persist, fields
// named in Clear are removed. Amenities merge as a set union filtered to the
// supported vocabulary.
func (c Constraints) Merge(d ConstraintDelta) Constraints {
	out := c

	for _, field := range d.Clear {
		switch field {
		case "city":
			out.City = ""
		case "check_in":
			out.CheckIn = ""
		case "check_out":
			out.CheckOut = ""
		case "adults":
			out.Adults = nil
		case "children":
			out.Children = nil
		case "rooms":
			out.Rooms = nil
		case "max_price":
			out.MaxPrice = nil
		case "min_star":
			out.MinStar = nil
		case "amenities":
			out.Amenities = nil
		case "refundable_only":
			out.RefundableOnly = nil
		}
	}

	if d.City != nil {
		out.City = strings.TrimSpace(*d.City)
	}
	if d.CheckIn != nil {
		out.CheckIn = *d.CheckIn
	}
	if d.CheckOut != nil {
		out.CheckOut = *d.CheckOut
	}
	if d.Adults != nil {
		out.Adults = intPtr(*d.Adults)
	}
	if d.Children != nil {
		out.Children = intPtr(*d.Children)
	}
	if d.Rooms != nil {
		out.Rooms = intPtr(*d.Rooms)
	}
	if d.MaxPrice != nil {
		out.MaxPrice = floatPtr(*d.MaxPrice)
	}
	if d.MinStar != nil {
		out.MinStar = intPtr(*d.MinStar)
	}
	if len(d.Amenities) > 0 {
		out.Amenities = mergeAmenities(out.Amenities, d.Amenities)
	}
	if d.RefundableOnly != nil {
		v := *d.RefundableOnly
		out.RefundableOnly = &v
	}
	if d.Currency != nil {
		out.Currency = *d.Currency
	}
	if out.Currency == "" {
		out.Currency = "USD"
	}

	return out
}

// MissingFields returns the required search fields still absent, in a stable
// order suitable for rendering a clarification question. An empty result
// means the constraints are complete enough to search.
func (c Constraints) MissingFields() []string {
	var missing []string
	if c.City == "" {
		missing = append(missing, "city")
	}
	if c.CheckIn == "" || c.CheckOut == "" || !c.datesOrdered() {
		missing = append(missing, "dates")
	}
	if c.Adults == nil || *c.Adults < 1 {
		missing = append(missing, "adults")
	}
	if c.Rooms == nil || *c.Rooms < 1 {
		missing = append(missing, "rooms")
	}
	return missing
}

// Complete reports whether a search can be issued.
func (c Constraints) Complete() bool {
	return len(c.MissingFields()) == 0
}

func (c Constraints) datesOrdered() bool {
	in, err := time.Parse(DateLayout, c.CheckIn)
	if err != nil {
		return false
	}
	out, err := time.Parse(DateLayout, c.CheckOut)
	if err != nil {
		return false
	}
	return in.Before(out)
}

// HardFilters returns the exact-match filter document sent to the tool
// backend. Only the filter-relevant subset of the constraints is included.
func (c Constraints) HardFilters() map[string]any {
	filters := map[string]any{}
	if c.MaxPrice != nil {
		filters["max_price"] = *c.MaxPrice
	}
	if c.MinStar != nil {
		filters["min_star"] = *c.MinStar
	}
	if len(c.Amenities) > 0 {
		filters["amenities"] = c.Amenities
	}
	if c.RefundableOnly != nil && *c.RefundableOnly {
		filters["refundable_only"] = true
	}
	return filters
}

// Fingerprint returns a stable hash of the tool-relevant constraint subset.
// Cached candidates and offers are keyed by this value; when it changes the
// pipeline state from prior turns is invalid and must be rebuilt.
func (c Constraints) Fingerprint() string {
	subset := map[string]any{
		"city":      strings.ToLower(c.City),
		"check_in":  c.CheckIn,
		"check_out": c.CheckOut,
		"currency":  c.Currency,
	}
	if c.Adults != nil {
		subset["adults"] = *c.Adults
	}
	if c.Children != nil {
		subset["children"] = *c.Children
	}
	if c.Rooms != nil {
		subset["rooms"] = *c.Rooms
	}
	for k, v := range c.HardFilters() {
		subset[k] = v
	}

	// json.Marshal sorts map keys, so the encoding is deterministic.
	raw, err := json.Marshal(subset)
	if err != nil {
		// Only unmarshalable values can land here, and the subset holds none.
		return fmt.Sprintf("unhashable:%v", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func mergeAmenities(existing, added []string) []string {
	seen := map[string]bool{}
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range added {
		a = strings.ToLower(strings.TrimSpace(a))
		if amenitySupported(a) {
			seen[a] = true
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func amenitySupported(a string) bool {
	for _, known := range AllowedAmenities {
		if a == known {
			return true
		}
	}
	return false
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
