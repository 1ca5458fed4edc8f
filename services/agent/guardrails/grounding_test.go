// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

func groundedOffers() []datatypes.OfferCard {
	return []datatypes.OfferCard{
		{
			Offer: datatypes.Offer{
				OfferID:    "of-1",
				TotalPrice: 412.50,
				TaxesTotal: 37.50,
				ExpiresTS:  "2026-10-01T18:00:00Z",
			},
			HotelName: "Hotel Mar Azul",
		},
		{
			Offer: datatypes.Offer{
				OfferID:    "of-2",
				TotalPrice: 300,
			},
			HotelName: "Pensao Central",
		},
	}
}

func TestGroundingValidatePasses(t *testing.T) {
	gs := NewGroundingSet(groundedOffers())

	t.Run("tool prices and timestamps pass", func(t *testing.T) {
		text := "Hotel Mar Azul is $412.50 total (incl. $37.50 taxes), held until 2026-10-01T18:00:00Z."
		assert.Empty(t, gs.Validate(text))
	})

	t.Run("whole-dollar prices pass in both renderings", func(t *testing.T) {
		assert.Empty(t, gs.Validate("Pensao Central comes to $300."))
		assert.Empty(t, gs.Validate("Pensao Central comes to $300.00."))
	})

	t.Run("text without numbers passes", func(t *testing.T) {
		assert.Empty(t, gs.Validate("Both hotels are close to the waterfront."))
	})
}

func TestGroundingValidateFlags(t *testing.T) {
	gs := NewGroundingSet(groundedOffers())

	t.Run("fabricated price is flagged", func(t *testing.T) {
		findings := gs.Validate("I can get you a deal at $199.99 instead.")
		require.Len(t, findings, 1)
		assert.Equal(t, "price", findings[0].Kind)
		assert.Equal(t, "$199.99", findings[0].Value)
	})

	t.Run("fabricated timestamp is flagged", func(t *testing.T) {
		findings := gs.Validate("This rate expires 2026-12-31T23:59:00Z, act fast.")
		require.Len(t, findings, 1)
		assert.Equal(t, "timestamp", findings[0].Kind)
	})

	t.Run("mixed text reports only the fabricated values", func(t *testing.T) {
		text := "Mar Azul is $412.50, or I could try for $380."
		findings := gs.Validate(text)
		require.Len(t, findings, 1)
		assert.Equal(t, "$380", findings[0].Value)
	})
}

func TestGroundingEmptySet(t *testing.T) {
	gs := NewGroundingSet(nil)
	findings := gs.Validate("The total is $100.")
	require.Len(t, findings, 1)
	assert.Equal(t, "price", findings[0].Kind)
}
