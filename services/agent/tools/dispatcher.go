// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/harborstay/concierge/services/agent/datatypes"
	"github.com/harborstay/concierge/services/agent/guardrails"
	"github.com/harborstay/concierge/services/agent/observability"
)

var dispatcherTracer = otel.Tracer("harborstay.agent.tools")

// ErrToolFailed is returned when a tool call fails after retries or with a
// non-retryable failure. The timeline entry carries the details.
var ErrToolFailed = errors.New("tool call failed")

const (
	maxPayloadRecorded = 2048
	maxPreviewRecorded = 512
)

// Dispatcher issues tool invocations against the registry under a turn
// budget. It owns the retry, timeout, and backoff logic and records exactly
// one timeline entry per logical call, attempted or skipped by budget.
//
// Thread Safety: Safe for concurrent use. Concurrent calls share the rate
// limiter and the caller-provided budget.
type Dispatcher struct {
	registry *Registry
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	metrics  *observability.AgentMetrics
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// BaseURL is the tools backend base URL, e.g. "http://tools:8090".
	BaseURL string

	// RequestsPerSecond bounds the outbound call rate across all turns.
	// Zero disables rate limiting.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Defaults to 2x the rate.
	Burst int

	// Client is the HTTP client to use. A default client is created when
	// nil; per-attempt timeouts come from the budget, not the client.
	Client *http.Client
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig, metrics *observability.AgentMetrics) *Dispatcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond*2) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Dispatcher{
		registry: registry,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   client,
		limiter:  limiter,
		metrics:  metrics,
	}
}

// Invoke performs one logical tool call.
//
// The returned ToolEvent is always populated (also on failure) and must be
// appended to the turn timeline by the caller. Error semantics:
//   - ErrUnknownTool: programming error, no event recorded, not retried.
//   - guardrails.ErrBudgetExhausted: budget spent before the call; the event
//     carries status budget_exceeded and no attempt was made.
//   - ErrToolFailed: timeout or error after the retry policy ran its course.
//
// Retries of the same logical call share this one event with an accumulated
// retry count. Only transient failures (network errors, timeouts, 5xx) are
// retried; 4xx responses and undecodable bodies fail immediately.
func (d *Dispatcher) Invoke(ctx context.Context, budget *guardrails.TurnBudget, toolName string, payload any) (json.RawMessage, datatypes.ToolEvent, error) {
	route, err := d.registry.Resolve(toolName)
	if err != nil {
		return nil, datatypes.ToolEvent{}, err
	}

	url := d.baseURL + route.Path
	event := datatypes.ToolEvent{
		ToolName: toolName,
		Path:     route.Path,
		URL:      url,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, datatypes.ToolEvent{}, fmt.Errorf("marshal %s request: %w", toolName, err)
	}
	event.Payload = truncate(string(body), maxPayloadRecorded)

	ctx, span := dispatcherTracer.Start(ctx, "tool."+toolName)
	defer span.End()

	if err := budget.TryConsumeCall(time.Now()); err != nil {
		event.Status = datatypes.CallBudgetExceeded
		span.SetAttributes(attribute.String("tool.status", string(event.Status)))
		d.record(event)
		return nil, event, err
	}

	policy := budget.Policy()
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetriesPerCall; attempt++ {
		if attempt > 0 {
			event.Retries = attempt
			select {
			case <-time.After(policy.Backoff(attempt)):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			// Wall clock is re-checked before every retry. A retry that
			// would start past the deadline is abandoned.
			if !time.Now().Before(budget.Deadline()) {
				event.Status = datatypes.CallBudgetExceeded
				event.LatencyMS = time.Since(start).Milliseconds()
				span.SetAttributes(attribute.String("tool.status", string(event.Status)))
				d.record(event)
				return nil, event, guardrails.ErrBudgetExhausted
			}
		}

		result, retryable, attemptErr := d.attempt(ctx, route, url, body, policy, budget)
		if attemptErr == nil {
			event.Status = datatypes.CallOK
			event.LatencyMS = time.Since(start).Milliseconds()
			summarizeResponse(&event, result)
			span.SetAttributes(
				attribute.String("tool.status", string(event.Status)),
				attribute.Int("tool.retries", event.Retries),
			)
			d.record(event)
			return result, event, nil
		}

		lastErr = attemptErr
		if !retryable {
			break
		}
	}

	event.LatencyMS = time.Since(start).Milliseconds()
	if isTimeout(lastErr) {
		event.Status = datatypes.CallTimeout
	} else {
		event.Status = datatypes.CallError
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	span.SetAttributes(
		attribute.String("tool.status", string(event.Status)),
		attribute.Int("tool.retries", event.Retries),
	)
	d.record(event)

	slog.Warn("Tool call failed",
		"tool", toolName,
		"status", event.Status,
		"retries", event.Retries,
		"latency_ms", event.LatencyMS,
		"error", lastErr,
	)
	return nil, event, fmt.Errorf("%w: %s: %v", ErrToolFailed, toolName, lastErr)
}

// attempt performs one HTTP round trip. The bool reports whether the
// failure class is retryable.
func (d *Dispatcher) attempt(ctx context.Context, route ToolRoute, url string, body []byte, policy guardrails.Policy, budget *guardrails.TurnBudget) (json.RawMessage, bool, error) {
	timeout := policy.PerCallTimeout
	if remaining := time.Until(budget.Deadline()); remaining < timeout {
		timeout = remaining
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(attemptCtx); err != nil {
			return nil, false, err
		}
	}

	req, err := http.NewRequestWithContext(attemptCtx, route.Method, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("tool returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	case resp.StatusCode >= 400:
		// Schema or request rejection. Retrying the same payload cannot help.
		return nil, false, fmt.Errorf("tool rejected request with %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	if !json.Valid(raw) {
		return nil, false, errors.New("tool returned a non-JSON body")
	}
	return json.RawMessage(raw), false, nil
}

func (d *Dispatcher) record(event datatypes.ToolEvent) {
	if d.metrics != nil {
		d.metrics.RecordToolCall(event.ToolName, string(event.Status),
			float64(event.LatencyMS)/1000.0, event.Retries)
	}
}

// summarizeResponse fills the bookkeeping fields from a successful response:
// sorted top-level keys, list cardinalities, and a truncated preview.
func summarizeResponse(event *datatypes.ToolEvent, raw json.RawMessage) {
	event.ResultPreview = truncate(string(raw), maxPreviewRecorded)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return
	}

	keys := make([]string, 0, len(doc))
	counts := map[string]int{}
	for key, value := range doc {
		keys = append(keys, key)
		var list []json.RawMessage
		if err := json.Unmarshal(value, &list); err == nil {
			counts[key] = len(list)
		}
	}
	sort.Strings(keys)

	event.ResponseKeys = keys
	if len(counts) > 0 {
		event.ResultCounts = counts
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate cuts at a rune boundary so persisted previews stay valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
