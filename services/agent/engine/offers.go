// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

// Wire shapes for the tool backend. Requests carry the tenant id and the
// merged constraints; responses carry offer-shaped records plus counts.

type searchRequest struct {
	TenantID    string         `json:"tenant_id,omitempty"`
	City        string         `json:"city"`
	CheckIn     string         `json:"check_in"`
	CheckOut    string         `json:"check_out"`
	Occupancy   occupancyDoc   `json:"occupancy"`
	HardFilters map[string]any `json:"hard_filters,omitempty"`
}

type occupancyDoc struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Rooms    int `json:"rooms"`
}

type searchResponse struct {
	Candidates []datatypes.CandidateHotel `json:"candidates"`
}

type offersRequest struct {
	TenantID  string       `json:"tenant_id,omitempty"`
	HotelIDs  []string     `json:"hotel_ids"`
	CheckIn   string       `json:"check_in"`
	CheckOut  string       `json:"check_out"`
	Occupancy occupancyDoc `json:"occupancy"`
	Currency  string       `json:"currency,omitempty"`
}

type offersResponse struct {
	Offers []datatypes.Offer `json:"offers"`
}

type rankRequest struct {
	TenantID    string            `json:"tenant_id,omitempty"`
	Offers      []datatypes.Offer `json:"offers"`
	HardFilters map[string]any    `json:"hard_filters,omitempty"`
}

type rankResponse struct {
	Ranked []datatypes.RankedOffer `json:"ranked"`
}

type checkOfferRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	OfferID  string `json:"offer_id"`
}

type checkOfferResponse struct {
	Offer datatypes.Offer `json:"offer"`
}

func occupancyFrom(c datatypes.Constraints) occupancyDoc {
	doc := occupancyDoc{Adults: 1, Rooms: 1}
	if c.Adults != nil {
		doc.Adults = *c.Adults
	}
	if c.Children != nil {
		doc.Children = *c.Children
	}
	if c.Rooms != nil {
		doc.Rooms = *c.Rooms
	}
	return doc
}

// buildCards decorates ranked offers with their hotel fields and applies
// the client-side spot check: hard filters and selectability are enforced
// again before anything is shown, whatever the tools claimed.
func buildCards(ranked []datatypes.RankedOffer, hotels []datatypes.CandidateHotel, c datatypes.Constraints, now time.Time, limit int) []datatypes.OfferCard {
	byID := make(map[string]datatypes.CandidateHotel, len(hotels))
	for _, h := range hotels {
		byID[h.HotelID] = h
	}

	var cards []datatypes.OfferCard
	for _, r := range ranked {
		offer := r.Offer
		if !offer.Selectable(now) {
			continue
		}
		if violatesHardFilters(offer, byID[offer.HotelID], c) {
			continue
		}
		card := datatypes.OfferCard{
			Offer: offer,
			Score: r.Score,
		}
		if hotel, ok := byID[offer.HotelID]; ok {
			card.HotelName = hotel.Name
			card.Neighborhood = hotel.Neighborhood
			card.StarRating = hotel.StarRating
		}
		cards = append(cards, card)
		if limit > 0 && len(cards) == limit {
			break
		}
	}
	return cards
}

func violatesHardFilters(offer datatypes.Offer, hotel datatypes.CandidateHotel, c datatypes.Constraints) bool {
	if c.MaxPrice != nil && offer.TotalPrice > *c.MaxPrice {
		return true
	}
	if c.MinStar != nil && hotel.StarRating > 0 && hotel.StarRating < float64(*c.MinStar) {
		return true
	}
	if c.RefundableOnly != nil && *c.RefundableOnly && !offer.Refundable {
		return true
	}
	return false
}

// selectableCards filters previously presented cards down to the ones still
// presentable right now. Expired or unavailable offers are dropped, not
// re-shown; an empty result signals the caller to re-run the pipeline.
func selectableCards(cards []datatypes.OfferCard, now time.Time) []datatypes.OfferCard {
	var fresh []datatypes.OfferCard
	for _, card := range cards {
		if card.Selectable(now) {
			fresh = append(fresh, card)
		}
	}
	return fresh
}

// selectionMatch is the outcome of resolving a user's offer reference.
type selectionMatch struct {
	selected *datatypes.OfferCard
	matches  []datatypes.OfferCard
}

// resolveSelection maps the user's reference to a presented offer. An exact
// offer_id match always wins; otherwise hotel-name substrings are tried.
// Multiple fuzzy matches are returned as-is so the machine can ask instead
// of guessing.
func resolveSelection(ref, message string, cards []datatypes.OfferCard) selectionMatch {
	ref = strings.TrimSpace(strings.ToLower(ref))
	msg := strings.ToLower(message)

	// Exact offer id, from the extracted reference or anywhere in the raw
	// message.
	for i := range cards {
		id := strings.ToLower(cards[i].OfferID)
		if id == "" {
			continue
		}
		if ref == id || strings.Contains(msg, id) {
			return selectionMatch{selected: &cards[i]}
		}
	}

	// Fuzzy: hotel name mention.
	needle := ref
	if needle == "" {
		needle = strings.TrimSpace(msg)
	}
	var matches []datatypes.OfferCard
	if needle != "" {
		for _, card := range cards {
			name := strings.ToLower(card.HotelName)
			if name == "" {
				continue
			}
			if strings.Contains(needle, name) || strings.Contains(name, needle) {
				matches = append(matches, card)
			}
		}
	}

	switch len(matches) {
	case 1:
		return selectionMatch{selected: &matches[0]}
	default:
		return selectionMatch{matches: matches}
	}
}

// chunkIDs splits hotel ids into batches for concurrent pricing.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// sortCardsByScore orders cards best-first, falling back to price when the
// ranking tool returned no scores.
func sortCardsByScore(cards []datatypes.OfferCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Score != cards[j].Score {
			return cards[i].Score > cards[j].Score
		}
		return cards[i].TotalPrice < cards[j].TotalPrice
	})
}
