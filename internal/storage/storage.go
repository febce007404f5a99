// Package storage provides the shared storage contract for weft.
//
// The concrete implementations live in the mysql and memory sub-packages.
// This package holds the interface, the listing option types, and the typed
// error taxonomy that every store surfaces. Stores never log and never
// swallow: they return one of the sentinel kinds below and the RPC shell is
// the only place that translates them to wire status codes.
package storage

import (
	"context"
	"errors"

	"github.com/weftlabs/weft/internal/types"
)

// ErrNotFound is returned when a retrieve or lookup misses.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned on a duplicate id insert, or when a tuple
// insert collides with the unique composite key.
var ErrAlreadyExists = errors.New("already exists")

// ErrRevisionMismatch is returned when a revision-guarded upsert saw a stale
// revision. The caller retrieves, reapplies, and retries.
var ErrRevisionMismatch = errors.New("revision mismatch")

// ErrInvalidData is returned when an attrs value is not a JSON object.
var ErrInvalidData = errors.New("invalid data")

// ErrInvalidParentID is returned when a principal's parent reference does not
// resolve within the space.
var ErrInvalidParentID = errors.New("invalid parent id")

// ErrInvalidKey is returned when a principal reference on a record or tuple
// endpoint does not resolve within the space.
var ErrInvalidKey = errors.New("invalid key")

// ErrInvalidListArgs is returned when a tuplet listing is given zero or two
// endpoints; exactly one side must be fixed.
var ErrInvalidListArgs = errors.New("invalid list arguments")

// ErrInvalidStrategy is returned for an unknown check or optimize strategy.
var ErrInvalidStrategy = errors.New("invalid strategy")

// ErrTimeout is returned when the connection guard could not be acquired
// within the configured window. The caller retries with backoff.
var ErrTimeout = errors.New("timeout acquiring storage connection")

// ErrUnavailable is returned when storage is not initialized or stayed
// unreachable after the single reconnect attempt. Fatal for the call.
var ErrUnavailable = errors.New("storage unavailable")

// ListOptions narrows and pages a tuple range scan. Limit is mandatory for
// the callers that page; the evaluators pass their remaining cost budget.
type ListOptions struct {
	// Relation filters on the tuple relation when non-empty.
	Relation string
	// Strand filters on the tuple strand when non-empty.
	Strand string
	// LastID is the exclusive cursor on the far-side entity id: ListLeft
	// resumes strictly below it on the left entity id, ListRight on the
	// right entity id. Entity ids are used rather than hashes so tokens
	// stay stable across compaction.
	LastID string
	// Limit caps the result size. Zero means no cap.
	Limit int
	// PrincipalsOnly keeps only tuples whose far-side endpoint is a
	// principal. Used by the list-principals surfaces.
	PrincipalsOnly bool
}

// Statistics are per-space row counts, reported by the daemon status
// operation.
type Statistics struct {
	Principals int64 `json:"principals"`
	Records    int64 `json:"records"`
	Tuples     int64 `json:"tuples"`
}

// Storage is the contract satisfied by *mysql.Store and *memory.Store.
// Every operation is scoped to a space; keys are unique within a space.
//
// Store* methods are revision-guarded upserts: a fresh object is inserted
// with its caller revision, an existing object is updated only when the
// stored revision equals the caller revision, and the new revision is
// written back onto the argument. A lost race surfaces as
// ErrRevisionMismatch with the argument's revision unchanged.
type Storage interface {
	// Principals
	StorePrincipal(ctx context.Context, p *types.Principal) error
	RetrievePrincipal(ctx context.Context, spaceID, principalID string) (*types.Principal, error)
	// DiscardPrincipal reports whether the principal existed. Deleting a
	// principal still referenced by records or tuple endpoints fails with
	// ErrInvalidKey.
	DiscardPrincipal(ctx context.Context, spaceID, principalID string) (bool, error)

	// Records
	StoreRecord(ctx context.Context, r *types.Record) error
	RetrieveRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (*types.Record, error)
	DiscardRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (bool, error)
	// ListRecordsByPrincipal returns records granted to a principal,
	// optionally narrowed to one resource type, ordered by resource id
	// descending with lastID as the exclusive cursor.
	ListRecordsByPrincipal(ctx context.Context, spaceID, principalID, resourceType, lastID string, limit int) ([]*types.Record, error)
	// ListRecordsByResource is the mirror image: records over one resource,
	// ordered by principal id descending with lastID as the cursor.
	ListRecordsByResource(ctx context.Context, spaceID, resourceType, resourceID, lastID string, limit int) ([]*types.Record, error)

	// Tuples
	StoreTuple(ctx context.Context, t *types.Tuple) error
	DiscardTuple(ctx context.Context, spaceID, tupleID string) (bool, error)
	RetrieveTuple(ctx context.Context, spaceID, tupleID string) (*types.Tuple, error)
	// LookupTuple matches the composite key exactly; empty relation or
	// strand act as wildcards. At most one tuple is returned.
	LookupTuple(ctx context.Context, spaceID string, left, right types.Endpoint, relation, strand string) (*types.Tuple, error)
	// ListLeft returns tuples whose right endpoint equals the given
	// endpoint, ordered by left hash descending then left entity id
	// descending.
	ListLeft(ctx context.Context, spaceID string, right types.Endpoint, opt ListOptions) ([]*types.Tuple, error)
	// ListRight returns tuples whose left endpoint equals the given
	// endpoint, ordered by right hash descending then right entity id
	// descending.
	ListRight(ctx context.Context, spaceID string, left types.Endpoint, opt ListOptions) ([]*types.Tuple, error)
	// ListTuplets projects tuples from exactly one fixed endpoint into
	// far-side tuplets; passing zero or two endpoints fails with
	// ErrInvalidListArgs.
	ListTuplets(ctx context.Context, spaceID string, left, right *types.Endpoint, relation string, limit int) ([]*types.Tuplet, error)

	// Statistics reports per-space row counts.
	Statistics(ctx context.Context, spaceID string) (*Statistics, error)

	// Lifecycle
	Close() error
}
