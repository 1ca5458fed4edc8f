// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraintsMerge(t *testing.T) {
	t.Run("delta fields overwrite", func(t *testing.T) {
		base := Constraints{City: "Lisbon", Currency: "USD"}
		city := "Porto"
		adults := 2
		merged := base.Merge(ConstraintDelta{City: &city, Adults: &adults})

		assert.Equal(t, "Porto", merged.City)
		require.NotNil(t, merged.Adults)
		assert.Equal(t, 2, *merged.Adults)
	})

	t.Run("unset delta fields keep base values", func(t *testing.T) {
		adults := 3
		base := Constraints{City: "Lisbon", Adults: &adults, Currency: "EUR"}
		merged := base.Merge(ConstraintDelta{})

		assert.Equal(t, "Lisbon", merged.City)
		require.NotNil(t, merged.Adults)
		assert.Equal(t, 3, *merged.Adults)
		assert.Equal(t, "EUR", merged.Currency)
	})

	t.Run("clear runs before overwrites", func(t *testing.T) {
		maxPrice := 200.0
		base := Constraints{City: "Lisbon", MaxPrice: &maxPrice}
		newPrice := 350.0
		merged := base.Merge(ConstraintDelta{
			Clear:    []string{"max_price"},
			MaxPrice: &newPrice,
		})

		require.NotNil(t, merged.MaxPrice)
		assert.Equal(t, 350.0, *merged.MaxPrice)
	})

	t.Run("clear without overwrite removes the field", func(t *testing.T) {
		maxPrice := 200.0
		base := Constraints{City: "Lisbon", MaxPrice: &maxPrice}
		merged := base.Merge(ConstraintDelta{Clear: []string{"max_price"}})

		assert.Nil(t, merged.MaxPrice)
	})

	t.Run("amenities union and allowlist filter", func(t *testing.T) {
		base := Constraints{Amenities: []string{"wifi"}}
		merged := base.Merge(ConstraintDelta{Amenities: []string{"pool", "wifi", "helipad"}})

		assert.ElementsMatch(t, []string{"wifi", "pool"}, merged.Amenities)
	})

	t.Run("currency defaults to USD", func(t *testing.T) {
		merged := Constraints{}.Merge(ConstraintDelta{})
		assert.Equal(t, "USD", merged.Currency)
	})
}

func TestConstraintsMissingFields(t *testing.T) {
	t.Run("empty constraints miss everything", func(t *testing.T) {
		missing := Constraints{}.MissingFields()
		assert.Equal(t, []string{"city", "dates", "adults", "rooms"}, missing)
	})

	t.Run("inverted dates count as missing", func(t *testing.T) {
		adults, rooms := 2, 1
		c := Constraints{
			City:     "Lisbon",
			CheckIn:  "2026-10-05",
			CheckOut: "2026-10-02",
			Adults:   &adults,
			Rooms:    &rooms,
		}
		assert.Equal(t, []string{"dates"}, c.MissingFields())
		assert.False(t, c.Complete())
	})

	t.Run("complete constraints miss nothing", func(t *testing.T) {
		adults, rooms := 2, 1
		c := Constraints{
			City:     "Lisbon",
			CheckIn:  "2026-10-02",
			CheckOut: "2026-10-05",
			Adults:   &adults,
			Rooms:    &rooms,
		}
		assert.Empty(t, c.MissingFields())
		assert.True(t, c.Complete())
	})
}

func TestConstraintsFingerprint(t *testing.T) {
	adults, rooms := 2, 1
	base := Constraints{
		City:     "Lisbon",
		CheckIn:  "2026-10-02",
		CheckOut: "2026-10-05",
		Adults:   &adults,
		Rooms:    &rooms,
		Currency: "USD",
	}

	t.Run("stable for identical constraints", func(t *testing.T) {
		other := base
		assert.Equal(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("city comparison ignores case", func(t *testing.T) {
		other := base
		other.City = "LISBON"
		assert.Equal(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("changing a search field changes the fingerprint", func(t *testing.T) {
		other := base
		other.CheckOut = "2026-10-06"
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("hard filters participate", func(t *testing.T) {
		maxPrice := 250.0
		other := base
		other.MaxPrice = &maxPrice
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})
}

func TestHardFilters(t *testing.T) {
	maxPrice := 250.0
	minStar := 4
	refundable := true
	c := Constraints{
		MaxPrice:       &maxPrice,
		MinStar:        &minStar,
		Amenities:      []string{"wifi", "pool"},
		RefundableOnly: &refundable,
	}

	filters := c.HardFilters()
	assert.Equal(t, 250.0, filters["max_price"])
	assert.Equal(t, 4, filters["min_star"])
	assert.Equal(t, true, filters["refundable_only"])

	assert.Empty(t, Constraints{}.HardFilters())
}
