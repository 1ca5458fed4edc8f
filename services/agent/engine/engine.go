// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/harborstay/concierge/services/agent/datatypes"
	"github.com/harborstay/concierge/services/agent/guardrails"
	"github.com/harborstay/concierge/services/agent/observability"
	"github.com/harborstay/concierge/services/agent/store"
	"github.com/harborstay/concierge/services/agent/tools"
	"github.com/harborstay/concierge/services/reasoning"
)

var engineTracer = otel.Tracer("harborstay.agent.engine")

// ErrConflict is surfaced when a turn lost the save race twice in a row.
// Callers should report it as retryable.
var ErrConflict = store.ErrConflict

const pricingChunkSize = 10

// Config tunes the state machine.
type Config struct {
	// Policy is the per-turn guardrail budget.
	Policy guardrails.Policy

	// MaxOffersShown caps how many offers one turn presents. Default: 3.
	MaxOffersShown int

	// RelaxationHint is the zero-candidate policy hook: given the
	// constraints that produced no results, suggest what to loosen.
	// Nil uses a conservative default.
	RelaxationHint func(datatypes.Constraints) string
}

// Engine is the session state machine.
//
// Thread Safety: Safe for concurrent use. Turns for the same session are
// serialized by a per-session lock; turns for different sessions run in
// parallel.
type Engine struct {
	store       store.SnapshotStore
	dispatcher  *tools.Dispatcher
	interpreter reasoning.Interpreter
	policy      guardrails.Policy
	maxOffers   int
	relaxHint   func(datatypes.Constraints) string
	locks       *sessionLocks
	metrics     *observability.AgentMetrics
}

// TurnRequest is one inbound chat message.
type TurnRequest struct {
	SessionID string
	TenantID  string
	UserID    string
	Message   string
}

// TurnResult is the turn-completion contract exposed to the chat surface.
type TurnResult struct {
	SessionID         string                  `json:"session_id"`
	TraceID           string                  `json:"trace_id"`
	AgentState        datatypes.AgentState    `json:"agent_state"`
	AssistantMessage  string                  `json:"assistant_message"`
	RecommendedOffers []datatypes.OfferCard   `json:"recommended_offers,omitempty"`
	ToolTimeline      []datatypes.ToolEvent   `json:"tool_timeline,omitempty"`
	Guardrails        guardrails.BudgetStatus `json:"guardrails"`
}

// New creates the state machine over its dependencies.
func New(st store.SnapshotStore, dispatcher *tools.Dispatcher, interpreter reasoning.Interpreter, cfg Config, metrics *observability.AgentMetrics) *Engine {
	if cfg.MaxOffersShown <= 0 {
		cfg.MaxOffersShown = 3
	}
	if cfg.RelaxationHint == nil {
		cfg.RelaxationHint = defaultRelaxationHint
	}
	if cfg.Policy.MaxToolCallsPerTurn == 0 {
		cfg.Policy = guardrails.DefaultPolicy()
	}
	return &Engine{
		store:       st,
		dispatcher:  dispatcher,
		interpreter: interpreter,
		policy:      cfg.Policy,
		maxOffers:   cfg.MaxOffersShown,
		relaxHint:   cfg.RelaxationHint,
		locks:       newSessionLocks(),
		metrics:     metrics,
	}
}

// HandleTurn runs one full turn: interpret, act, persist. A save conflict
// (another instance wrote the snapshot underneath us) aborts the turn and
// retries once against a freshly loaded snapshot; a second conflict is
// returned as ErrConflict.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	unlock := e.locks.Lock(req.SessionID)
	defer unlock()

	result, err := e.runTurn(ctx, req)
	if errors.Is(err, store.ErrConflict) {
		if e.metrics != nil {
			e.metrics.SaveConflictsTotal.Inc()
		}
		slog.Warn("Snapshot save conflict, retrying turn once",
			"session_id", req.SessionID)
		result, err = e.runTurn(ctx, req)
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrConflict)
		}
	}
	return result, err
}

// turnState carries the mutable working set of one turn.
type turnState struct {
	snap   *datatypes.Snapshot
	budget *guardrails.TurnBudget

	mu       sync.Mutex
	timeline []datatypes.ToolEvent

	message   string
	offers    []datatypes.OfferCard
	budgetHit bool
}

func (ts *turnState) appendEvent(ev datatypes.ToolEvent) {
	ts.mu.Lock()
	ts.timeline = append(ts.timeline, ev)
	ts.mu.Unlock()
}

func (e *Engine) runTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ctx, span := engineTracer.Start(ctx, "agent.turn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	started := time.Now()
	if e.metrics != nil {
		e.metrics.ActiveTurns.Inc()
		defer e.metrics.ActiveTurns.Dec()
	}

	traceID := observability.TraceIDFromContext(ctx)

	snap, expected, err := e.loadOrCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	ts := &turnState{
		snap:   snap,
		budget: guardrails.NewTurnBudget(e.policy, started),
	}

	if snap.AgentState.IsTerminal() {
		ts.message = renderClosed(snap.AgentState)
	} else {
		interp := e.interpret(ctx, req.Message, snap.Constraints)
		e.advance(ctx, ts, interp, req)
		e.applyReplyHint(ts, interp)
	}

	turn := datatypes.TurnRecord{
		UserMessage:       req.Message,
		AssistantMessage:  ts.message,
		AgentState:        snap.AgentState,
		ToolTimeline:      ts.timeline,
		RecommendedOffers: ts.offers,
		TraceID:           traceID,
	}
	snap.AppendTurn(turn)
	snap.PushTraceID(traceID)
	snap.UpdatedAt = time.Now().UTC()

	if err := e.store.Save(ctx, snap, expected); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordTurn(string(snap.AgentState), time.Since(started).Seconds())
	}
	span.SetAttributes(
		attribute.String("agent.state", string(snap.AgentState)),
		attribute.Int("tool.calls", len(ts.timeline)),
	)

	return &TurnResult{
		SessionID:         snap.SessionID,
		TraceID:           traceID,
		AgentState:        snap.AgentState,
		AssistantMessage:  ts.message,
		RecommendedOffers: ts.offers,
		ToolTimeline:      ts.timeline,
		Guardrails:        ts.budget.Status(time.Now()),
	}, nil
}

func (e *Engine) loadOrCreate(ctx context.Context, req TurnRequest) (*datatypes.Snapshot, time.Time, error) {
	snap, err := e.store.Load(ctx, req.SessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return datatypes.NewSnapshot(req.SessionID, req.TenantID, req.UserID), time.Time{}, nil
	case err != nil:
		return nil, time.Time{}, err
	}
	return snap, snap.UpdatedAt, nil
}

// interpret wraps the reasoning capability. Its contract already degrades
// unparseable input to IntentOther; transport failures degrade the same way
// here so a turn never dies on the language model.
func (e *Engine) interpret(ctx context.Context, message string, current datatypes.Constraints) reasoning.Interpretation {
	interp, err := e.interpreter.Interpret(ctx, message, current)
	if err != nil {
		slog.Warn("Interpretation failed, treating message as unclassified", "error", err)
		return reasoning.Interpretation{Intent: reasoning.IntentOther}
	}
	return interp
}

// applyReplyHint appends the model's phrasing suggestion only when every
// price and timestamp in it is grounded in the offers on the table.
func (e *Engine) applyReplyHint(ts *turnState, interp reasoning.Interpretation) {
	if interp.ReplyHint == "" {
		return
	}
	grounding := guardrails.NewGroundingSet(ts.offers)
	if findings := grounding.Validate(interp.ReplyHint); len(findings) > 0 {
		if e.metrics != nil {
			e.metrics.GroundingFallbacksTotal.Inc()
		}
		slog.Warn("Reply hint rejected by grounding validator",
			"findings", len(findings))
		return
	}
	ts.message = ts.message + "\n" + interp.ReplyHint
}

// advance is the transition function: one turn's worth of decisions.
func (e *Engine) advance(ctx context.Context, ts *turnState, interp reasoning.Interpretation, req TurnRequest) {
	snap := ts.snap

	switch interp.Intent {
	case reasoning.IntentCancel:
		e.setState(snap, datatypes.StateCancelled)
		ts.message = renderCancelled()
		return

	case reasoning.IntentReset:
		snap.Constraints = datatypes.Constraints{Currency: "USD"}
		snap.InvalidateToolState()
		e.setState(snap, datatypes.StateInit)
		ts.message = renderReset(snap.Constraints.MissingFields())
		return
	}

	merged := snap.Constraints.Merge(interp.Delta)
	snap.Constraints = merged
	fingerprint := merged.Fingerprint()
	fingerprintChanged := snap.ToolConstraintsKey != "" && snap.ToolConstraintsKey != fingerprint
	if fingerprintChanged {
		snap.InvalidateToolState()
	}

	if interp.Intent == reasoning.IntentSelectOffer &&
		(snap.AgentState == datatypes.StateWaitForSelection || snap.AgentState == datatypes.StateConfirming) {
		e.handleSelection(ctx, ts, interp, req)
		return
	}

	// A verification left pending (budget ran out mid-confirm) is retried
	// on the next turn regardless of how the message was classified.
	if snap.AgentState == datatypes.StateConfirming && snap.SelectedOfferID != "" {
		interp.OfferRef = snap.SelectedOfferID
		e.handleSelection(ctx, ts, interp, req)
		return
	}

	if missing := merged.MissingFields(); len(missing) > 0 {
		e.setState(snap, datatypes.StateCollectingConstraints)
		ts.message = renderClarify(missing)
		return
	}

	// Constraints are complete. If offers from this same constraint set are
	// already on the table and still fresh, re-present them instead of
	// burning budget on an identical search.
	if snap.AgentState == datatypes.StateWaitForSelection && !fingerprintChanged {
		if fresh := selectableCards(snap.RecommendedOffers, time.Now()); len(fresh) > 0 {
			snap.RecommendedOffers = fresh
			ts.offers = fresh
			ts.message = renderOffers(fresh)
			return
		}
		// Everything presented has gone stale; rebuild.
		snap.InvalidateToolState()
	}

	e.runSearchPipeline(ctx, ts, req, fingerprint)
}

// setState applies a transition, logging instead of corrupting state when
// the table says no. The table and the callers are maintained together, so
// a violation here is a bug worth shouting about.
func (e *Engine) setState(snap *datatypes.Snapshot, to datatypes.AgentState) {
	if err := transition(snap, to); err != nil {
		slog.Error("State transition rejected", "error", err,
			"session_id", snap.SessionID)
	}
}

// runSearchPipeline drives search_candidates, get_offers, and rank_offers
// under the turn budget, then presents the top offers.
func (e *Engine) runSearchPipeline(ctx context.Context, ts *turnState, req TurnRequest, fingerprint string) {
	snap := ts.snap
	stateBefore := snap.AgentState
	e.setState(snap, datatypes.StateSearching)

	c := snap.Constraints

	// Stage 1: candidate universe.
	var search searchResponse
	outcome := e.call(ctx, ts, "search_candidates", searchRequest{
		TenantID:    req.TenantID,
		City:        c.City,
		CheckIn:     c.CheckIn,
		CheckOut:    c.CheckOut,
		Occupancy:   occupancyFrom(c),
		HardFilters: c.HardFilters(),
	}, &search)
	if outcome != callOK {
		e.endDegraded(ts, stateBefore, "hotel search", outcome)
		return
	}
	snap.CandidateHotels = search.Candidates

	if len(search.Candidates) == 0 {
		e.setState(snap, datatypes.StateCollectingConstraints)
		snap.ToolConstraintsKey = fingerprint
		ts.message = renderNoCandidates(e.relaxHint(c))
		return
	}

	// Stage 2: price a bounded slice of the universe, in parallel chunks.
	limit := e.policy.MaxHotelsPriced
	ids := make([]string, 0, limit)
	for _, h := range search.Candidates {
		ids = append(ids, h.HotelID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}

	offers, outcome := e.priceCandidates(ctx, ts, req, c, ids)
	if len(offers) == 0 {
		if outcome != callOK {
			e.endDegraded(ts, stateBefore, "pricing", outcome)
			return
		}
		e.setState(snap, datatypes.StateCollectingConstraints)
		snap.ToolConstraintsKey = fingerprint
		ts.message = renderNoCandidates(e.relaxHint(c))
		return
	}

	// Stage 3: external ranking.
	var ranked rankResponse
	rankOutcome := e.call(ctx, ts, "rank_offers", rankRequest{
		TenantID:    req.TenantID,
		Offers:      offers,
		HardFilters: c.HardFilters(),
	}, &ranked)
	if rankOutcome != callOK {
		// Ranking is a nicety; losing it degrades to price order, it does
		// not kill the turn.
		ranked.Ranked = make([]datatypes.RankedOffer, 0, len(offers))
		for _, o := range offers {
			ranked.Ranked = append(ranked.Ranked, datatypes.RankedOffer{Offer: o})
		}
		if rankOutcome == callBudget {
			ts.budgetHit = true
		}
	}

	cards := buildCards(ranked.Ranked, search.Candidates, c, time.Now(), e.maxOffers)
	sortCardsByScore(cards)

	if len(cards) == 0 {
		e.setState(snap, datatypes.StateCollectingConstraints)
		snap.ToolConstraintsKey = fingerprint
		ts.message = renderNoCandidates(e.relaxHint(c))
		return
	}

	snap.RecommendedOffers = cards
	snap.ToolConstraintsKey = fingerprint
	e.setState(snap, datatypes.StateWaitForSelection)
	ts.offers = cards
	ts.message = renderOffers(cards)
	if ts.budgetHit {
		ts.message = renderBudgetDegraded("ranking") + "\n" + ts.message
	}
}

// priceCandidates runs get_offers over candidate chunks concurrently. Each
// chunk is its own budgeted tool call; a chunk that hits the budget stops
// the group but keeps what was already priced (partial results are still
// results).
func (e *Engine) priceCandidates(ctx context.Context, ts *turnState, req TurnRequest, c datatypes.Constraints, ids []string) ([]datatypes.Offer, callOutcome) {
	chunks := chunkIDs(ids, pricingChunkSize)

	var mu sync.Mutex
	var offers []datatypes.Offer
	worst := callOK

	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		g.Go(func() error {
			var resp offersResponse
			outcome := e.call(gctx, ts, "get_offers", offersRequest{
				TenantID:  req.TenantID,
				HotelIDs:  chunk,
				CheckIn:   c.CheckIn,
				CheckOut:  c.CheckOut,
				Occupancy: occupancyFrom(c),
				Currency:  c.Currency,
			}, &resp)

			mu.Lock()
			defer mu.Unlock()
			if outcome == callOK {
				offers = append(offers, resp.Offers...)
			} else {
				worst = outcome
			}
			if outcome == callBudget {
				return guardrails.ErrBudgetExhausted
			}
			return nil
		})
	}
	// The only error pushed through the group is budget exhaustion, and
	// that is already captured in worst.
	_ = g.Wait()

	return offers, worst
}

// handleSelection resolves the user's pick and re-verifies it before
// confirming.
func (e *Engine) handleSelection(ctx context.Context, ts *turnState, interp reasoning.Interpretation, req TurnRequest) {
	snap := ts.snap
	cards := snap.RecommendedOffers

	match := resolveSelection(interp.OfferRef, req.Message, cards)
	if match.selected == nil {
		// The machine never guesses between candidates.
		ts.offers = cards
		if len(match.matches) > 1 {
			ts.message = renderAmbiguousSelection(match.matches)
		} else {
			ts.message = renderUnknownSelection()
		}
		return
	}

	selected := *match.selected
	e.setState(snap, datatypes.StateConfirming)
	snap.SelectedOfferID = selected.OfferID

	var check checkOfferResponse
	outcome := e.call(ctx, ts, "check_offer", checkOfferRequest{
		TenantID: req.TenantID,
		OfferID:  selected.OfferID,
	}, &check)

	switch outcome {
	case callBudget:
		// Stay in CONFIRMING; the next turn retries the verification.
		ts.message = renderBudgetDegraded("offer verification")
		return
	case callFailed:
		e.setState(snap, datatypes.StateFailed)
		ts.message = renderToolFailure("offer verification")
		return
	}

	fresh := check.Offer
	now := time.Now()
	priceUnchanged := fresh.TotalPrice == selected.TotalPrice

	if fresh.InventoryStatus == datatypes.InventoryAvailable && priceUnchanged && !fresh.Expired(now) {
		confirmed := selected
		confirmed.Offer = fresh
		e.setState(snap, datatypes.StateConfirmed)
		snap.SelectedOfferID = fresh.OfferID
		ts.offers = []datatypes.OfferCard{confirmed}
		ts.message = renderConfirmed(confirmed)
		return
	}

	// Stale, sold out, or repriced: back to selection with the bad offer
	// flagged out and the remaining cards re-verified.
	reason := staleReason(fresh, selected, now)
	snap.SelectedOfferID = ""
	refreshed := e.refreshCards(ctx, ts, req, cards, selected.OfferID)
	snap.RecommendedOffers = refreshed
	e.setState(snap, datatypes.StateWaitForSelection)
	ts.offers = refreshed
	ts.message = renderStaleSelection(selected.OfferID, reason, refreshed)
}

func staleReason(fresh datatypes.Offer, selected datatypes.OfferCard, now time.Time) string {
	switch {
	case fresh.InventoryStatus == datatypes.InventorySoldOut:
		return "it sold out"
	case fresh.Expired(now):
		return "the quote expired"
	case fresh.TotalPrice != selected.TotalPrice:
		return fmt.Sprintf("the price moved from $%.2f to $%.2f", selected.TotalPrice, fresh.TotalPrice)
	default:
		return "it is no longer available at the quoted terms"
	}
}

// refreshCards re-verifies the remaining presented offers concurrently,
// dropping the rejected one and anything no longer bookable. Budget errors
// simply stop the refresh early; whatever verified stays.
func (e *Engine) refreshCards(ctx context.Context, ts *turnState, req TurnRequest, cards []datatypes.OfferCard, droppedID string) []datatypes.OfferCard {
	keep := make([]datatypes.OfferCard, 0, len(cards))
	for _, card := range cards {
		if card.OfferID != droppedID {
			keep = append(keep, card)
		}
	}
	if len(keep) == 0 {
		return nil
	}

	refreshed := make([]datatypes.OfferCard, len(keep))
	valid := make([]bool, len(keep))

	g, gctx := errgroup.WithContext(ctx)
	for i, card := range keep {
		g.Go(func() error {
			var check checkOfferResponse
			outcome := e.call(gctx, ts, "check_offer", checkOfferRequest{
				TenantID: req.TenantID,
				OfferID:  card.OfferID,
			}, &check)
			if outcome != callOK {
				if outcome == callBudget {
					ts.budgetHit = true
					return guardrails.ErrBudgetExhausted
				}
				return nil
			}
			if check.Offer.Selectable(time.Now()) {
				updated := card
				updated.Offer = check.Offer
				refreshed[i] = updated
				valid[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []datatypes.OfferCard
	for i, ok := range valid {
		if ok {
			out = append(out, refreshed[i])
		}
	}
	return out
}

// callOutcome collapses dispatcher results into what the state machine
// cares about.
type callOutcome int

const (
	callOK callOutcome = iota
	callFailed
	callBudget
)

// call invokes one tool, appends its timeline entry, and decodes the
// response into out. Unknown tools panic: a tool name that is not in the
// registry is a build defect, not a runtime condition to degrade around.
func (e *Engine) call(ctx context.Context, ts *turnState, toolName string, payload, out any) callOutcome {
	raw, event, err := e.dispatcher.Invoke(ctx, ts.budget, toolName, payload)
	if errors.Is(err, tools.ErrUnknownTool) {
		panic(fmt.Sprintf("tool %q missing from registry", toolName))
	}

	ts.appendEvent(event)

	switch {
	case errors.Is(err, guardrails.ErrBudgetExhausted):
		if e.metrics != nil {
			e.metrics.BudgetExhaustionsTotal.WithLabelValues("wall_clock").Inc()
		}
		return callBudget
	case err != nil:
		return callFailed
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			slog.Error("Tool response did not match the expected shape",
				"tool", toolName, "error", err)
			return callFailed
		}
	}
	return callOK
}

// endDegraded finishes a turn that could not complete its tool work: the
// budget path keeps the pre-call state with a partial-results message, the
// failure path reports the failed step with the session unchanged.
func (e *Engine) endDegraded(ts *turnState, stateBefore datatypes.AgentState, step string, outcome callOutcome) {
	snap := ts.snap
	if outcome == callBudget {
		snap.AgentState = stateBefore
		ts.message = renderBudgetDegraded(step)
		return
	}
	snap.AgentState = stateBefore
	ts.message = renderToolFailure(step)
}
