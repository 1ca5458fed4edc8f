// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"strings"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

// Assistant messages are rendered deterministically from tool data. Prices,
// availability, and timestamps in user-visible text always come from an
// offer the tools returned, never from the reasoning capability.

var clarifyQuestions = map[string]string{
	"city":   "Which city are you planning to visit?",
	"dates":  "What are your check-in and check-out dates?",
	"adults": "How many adults are traveling?",
	"rooms":  "How many rooms do you need?",
}

// renderClarify asks for the missing required fields, at most two questions
// at a time so the user is never walled with a form.
func renderClarify(missing []string) string {
	var questions []string
	for _, field := range missing {
		if q, ok := clarifyQuestions[field]; ok {
			questions = append(questions, q)
		}
		if len(questions) == 2 {
			break
		}
	}
	if len(questions) == 0 {
		return "Could you tell me a bit more about the stay you have in mind?"
	}
	return strings.Join(questions, " ")
}

func renderOffers(cards []datatypes.OfferCard) string {
	var b strings.Builder
	b.WriteString("Here are the top options I found:\n")
	for i, card := range cards {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, card.HotelName))
		if card.StarRating > 0 {
			b.WriteString(fmt.Sprintf(" (%.1f-star", card.StarRating))
			if card.Neighborhood != "" {
				b.WriteString(", " + card.Neighborhood)
			}
			b.WriteString(")")
		} else if card.Neighborhood != "" {
			b.WriteString(" (" + card.Neighborhood + ")")
		}
		b.WriteString(fmt.Sprintf(" - $%.2f %s total", card.TotalPrice, card.Currency))
		if card.Refundable {
			b.WriteString(", refundable")
		} else {
			b.WriteString(", non-refundable")
		}
		b.WriteString(fmt.Sprintf(" [offer_id: %s]\n", card.OfferID))
	}
	b.WriteString("Select one by replying with its offer_id.")
	return b.String()
}

func renderConfirmed(card datatypes.OfferCard) string {
	msg := fmt.Sprintf(
		"Confirmed: %s at $%.2f %s total, offer %s. Price and availability were re-verified just now.",
		card.HotelName, card.TotalPrice, card.Currency, card.OfferID)
	if card.Refundable && card.CancellationDeadline != "" {
		msg += fmt.Sprintf(" Free cancellation until %s.", card.CancellationDeadline)
	}
	return msg
}

func renderStaleSelection(offerID, reason string, refreshed []datatypes.OfferCard) string {
	head := fmt.Sprintf("Offer %s changed since I quoted it (%s), so I did not confirm it.", offerID, reason)
	if len(refreshed) == 0 {
		return head + " None of the earlier options are still bookable; tell me if you would like me to search again."
	}
	return head + "\n" + renderOffers(refreshed)
}

func renderAmbiguousSelection(matches []datatypes.OfferCard) string {
	var ids []string
	for _, card := range matches {
		ids = append(ids, fmt.Sprintf("%s (%s)", card.OfferID, card.HotelName))
	}
	return "A few of the options match that description: " + strings.Join(ids, ", ") +
		". Which offer_id would you like?"
}

func renderUnknownSelection() string {
	return "I couldn't match that to any of the offers I showed you. Reply with one of the listed offer_ids, or tell me what to change."
}

func renderNoCandidates(hint string) string {
	msg := "I didn't find any hotels matching everything you asked for."
	if hint != "" {
		msg += " " + hint
	}
	return msg
}

func renderBudgetDegraded(step string) string {
	return fmt.Sprintf(
		"I ran out of my time budget for this turn while working on the %s step, so these results are partial. Ask again to continue where I left off.",
		step)
}

func renderToolFailure(step string) string {
	return fmt.Sprintf(
		"The %s step failed on my side, so I couldn't finish that. Nothing about your session changed; please try again.",
		step)
}

func renderCancelled() string {
	return "Okay, I've cancelled this booking session. Start a new one whenever you're ready."
}

func renderReset(missing []string) string {
	return "Starting over with a clean slate. " + renderClarify(missing)
}

func renderClosed(state datatypes.AgentState) string {
	switch state {
	case datatypes.StateConfirmed:
		return "This session already has a confirmed selection. Start a new session to book another stay."
	case datatypes.StateCancelled:
		return "This session was cancelled. Start a new session to book a stay."
	default:
		return "This session ended after an unrecoverable error. Start a new session to try again."
	}
}

// defaultRelaxationHint is the zero-candidate policy hook default: suggest
// loosening the tightest stated filter rather than guessing on the user's
// behalf.
func defaultRelaxationHint(c datatypes.Constraints) string {
	switch {
	case c.MaxPrice != nil:
		return fmt.Sprintf("Would you consider raising the $%.0f budget, or trying different dates?", *c.MaxPrice)
	case c.MinStar != nil:
		return fmt.Sprintf("Would you consider hotels below %d stars, or a different neighborhood?", *c.MinStar)
	case len(c.Amenities) > 0:
		return "Would you consider dropping one of the amenity requirements?"
	default:
		return "Would different dates or a nearby city work?"
	}
}
