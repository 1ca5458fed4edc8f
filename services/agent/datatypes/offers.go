// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Inventory status values reported by the pricing tool.
const (
	InventoryAvailable = "available"
	InventorySoldOut   = "sold_out"
	InventoryStale     = "stale"
)

// CandidateHotel is one hotel returned by the search tool, before pricing.
type CandidateHotel struct {
	HotelID      string   `json:"hotel_id"`
	Name         string   `json:"name"`
	City         string   `json:"city"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	StarRating   float64  `json:"star_rating"`
	Lat          float64  `json:"lat,omitempty"`
	Lon          float64  `json:"lon,omitempty"`
	Amenities    []string `json:"amenities,omitempty"`
}

// Offer is a priced, bookable rate for one hotel. Owned by the tool backend;
// the core consumes it and must re-verify before confirming.
type Offer struct {
	OfferID              string  `json:"offer_id"`
	HotelID              string  `json:"hotel_id"`
	TotalPrice           float64 `json:"total_price"`
	TaxesTotal           float64 `json:"taxes_total,omitempty"`
	FeesTotal            float64 `json:"fees_total,omitempty"`
	Currency             string  `json:"currency"`
	Refundable           bool    `json:"refundable"`
	CancellationDeadline string  `json:"cancellation_deadline,omitempty"`
	InventoryStatus      string  `json:"inventory_status"`
	LastPricedTS         string  `json:"last_priced_ts,omitempty"`
	ExpiresTS            string  `json:"expires_ts,omitempty"`
	RoomType             string  `json:"room_type,omitempty"`
	BedConfig            string  `json:"bed_config,omitempty"`
	RatePlan             string  `json:"rate_plan,omitempty"`
}

// Expired reports whether the offer's expires_ts has passed relative to now.
// Offers without an expiry never expire.
func (o Offer) Expired(now time.Time) bool {
	if o.ExpiresTS == "" {
		return false
	}
	exp, err := time.Parse(time.RFC3339, o.ExpiresTS)
	if err != nil {
		// An unparsable expiry counts as expired. Better to re-verify than
		// to present an offer we cannot reason about.
		return true
	}
	return !exp.After(now)
}

// Selectable reports whether the offer may be presented for selection
// without re-verification.
func (o Offer) Selectable(now time.Time) bool {
	return o.InventoryStatus == InventoryAvailable && !o.Expired(now)
}

// RankedOffer is the ranking tool's output: an offer plus its score.
type RankedOffer struct {
	Offer   Offer    `json:"offer"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// OfferCard is what the user actually sees: an offer decorated with the
// hotel fields needed to render it.
type OfferCard struct {
	Offer
	HotelName    string  `json:"hotel_name"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	StarRating   float64 `json:"star_rating"`
	Score        float64 `json:"score,omitempty"`
}
