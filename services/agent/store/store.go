// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists session snapshots in an embedded BadgerDB.
//
// The store replaces whole snapshots atomically, keyed by session id. There
// is no field-level merge here: merging happens in the state machine before
// save. Save takes the updated_at value the caller loaded and rejects the
// write when the stored snapshot has moved on, which is what makes
// single-writer-per-session hold across multiple service instances.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

var (
	// ErrNotFound indicates no snapshot exists for the session id.
	ErrNotFound = errors.New("session not found")

	// ErrConflict indicates the snapshot changed since it was loaded.
	ErrConflict = errors.New("snapshot modified concurrently")
)

// SessionHead is one row of a session listing.
type SessionHead struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotStore is the session persistence contract.
type SnapshotStore interface {
	// Load returns the snapshot for a session id, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*datatypes.Snapshot, error)

	// Save atomically replaces the snapshot. expected must be the
	// UpdatedAt value of the snapshot the caller loaded (zero for a new
	// session). Returns ErrConflict when the stored value differs.
	// The snapshot's UpdatedAt must already be set to the new timestamp.
	Save(ctx context.Context, snap *datatypes.Snapshot, expected time.Time) error

	// Import stores an externally supplied snapshot unconditionally.
	// State validation happens at the boundary before this is called.
	Import(ctx context.Context, snap *datatypes.Snapshot) error

	// List returns up to limit session heads, newest updated first.
	List(ctx context.Context, limit int) ([]SessionHead, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Close releases the underlying database.
	Close() error
}
