package domain

import (
	"context"
	"encoding/json"
)

// ─── Document Store ─────────────────────────────────────────────────────────
// The engine treats persistence as a generic document store. Infrastructure
// implements Store; the application layer only sees Tx.

// Collections used by the engine.
const (
	CollWillpower      = "willpower"
	CollChallenges     = "challenges"
	CollCompletionLogs = "completion_logs"
	CollTemplates      = "challenge_templates"
	CollBuddies        = "buddy_challenges"
	CollDuoStreaks     = "duo_streaks"
	CollNotifications  = "notifications"
	CollDeviceTokens   = "device_tokens"
)

// AnyVersion disables the optimistic version check on Update.
const AnyVersion int64 = -1

// Document is a stored record. Version increases by one on every update.
type Document struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Filter matches documents whose top-level field equals Value.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Tx is a unit of work against the store. All calls made through one Tx
// commit or roll back together.
type Tx interface {
	// Get returns ErrDocumentNotFound when the id is unknown.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns matching documents ordered by creation time.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)

	// Create stores fields under id (a new uuid when id is empty) at version 1.
	Create(ctx context.Context, collection, id string, fields any) (string, error)

	// Update replaces the document body. When version != AnyVersion the write
	// only succeeds if the stored version still matches, else ErrVersionConflict.
	Update(ctx context.Context, collection, id string, version int64, fields any) error

	// Delete removes the document; ErrDocumentNotFound when absent.
	Delete(ctx context.Context, collection, id string) error
}

// Store runs units of work. fn's error rolls the transaction back.
type Store interface {
	RunTx(ctx context.Context, fn func(tx Tx) error) error
}

// ─── Push Delivery ──────────────────────────────────────────────────────────

// Pusher delivers a notification to device tokens. Implementations are
// best-effort; failures never affect engine state.
type Pusher interface {
	Push(ctx context.Context, tokens []DeviceToken, n Notification) error
}
