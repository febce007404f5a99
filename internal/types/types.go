// Package types defines the core value types shared by the weft stores and
// evaluators: principals, records, relation tuples, and the one-sided tuplet
// projection used during graph traversal.
//
// Types here carry no behavior beyond normalization and composition; every
// store owns the instances it returns, and callers may mutate them freely.
package types

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// PrincipalEntityType is the canonical entity type used when a tuple endpoint
// refers to a principal. Sanitization pins the entity form of a principal
// endpoint to (PrincipalEntityType, principal id).
const PrincipalEntityType = "principal"

// DiscardedRev is the sentinel revision assigned to an in-memory entity after
// a successful discard. Any later store() with this revision fails the
// revision guard, which is the point.
const DiscardedRev = -1

// Strategy selects how a check or create resolves non-direct relationships.
type Strategy string

const (
	// StrategyDirect stops after the direct composite lookup (check), or
	// materializes both expansion directions (create).
	StrategyDirect Strategy = "direct"
	// StrategyGraph runs the cost-bounded BFS (check), or stores only the
	// primary tuple (create).
	StrategyGraph Strategy = "graph"
	// StrategySet runs the two-sided ordered merge (check), or materializes
	// only principal-reaching compositions (create).
	StrategySet Strategy = "set"
)

// Endpoint is one side of a tuple: either a typed entity or a principal.
// The two forms are mutually exclusive; Sanitize derives the entity form
// from the principal form so the hash and ordering logic only ever sees
// (Type, ID).
type Endpoint struct {
	Type        string `json:"type,omitempty"`
	ID          string `json:"id,omitempty"`
	PrincipalID string `json:"principal_id,omitempty"`
}

// EntityEndpoint returns an entity-form endpoint.
func EntityEndpoint(entityType, entityID string) Endpoint {
	return Endpoint{Type: entityType, ID: entityID}
}

// PrincipalEndpoint returns a principal-form endpoint in its sanitized shape.
func PrincipalEndpoint(principalID string) Endpoint {
	return Endpoint{Type: PrincipalEntityType, ID: principalID, PrincipalID: principalID}
}

// Sanitize normalizes the endpoint in place: when the principal id is set,
// the entity type is pinned to PrincipalEntityType and the entity id equals
// the principal id. Idempotent.
func (e *Endpoint) Sanitize() {
	if e.PrincipalID != "" {
		e.Type = PrincipalEntityType
		e.ID = e.PrincipalID
	}
}

// IsPrincipal reports whether the endpoint refers to a principal.
func (e Endpoint) IsPrincipal() bool {
	return e.PrincipalID != ""
}

// IsZero reports whether the endpoint is unset on both sides.
func (e Endpoint) IsZero() bool {
	return e.Type == "" && e.ID == "" && e.PrincipalID == ""
}

// Equal compares the sanitized entity forms of two endpoints.
func (e Endpoint) Equal(other Endpoint) bool {
	e.Sanitize()
	other.Sanitize()
	return e.Type == other.Type && e.ID == other.ID
}

// Hash returns the 64-bit ordering hash of the endpoint's entity form.
// Tuples persist this value for both sides so range scans can order by it.
func (e Endpoint) Hash() uint64 {
	e.Sanitize()
	return EntityHash(e.Type, e.ID)
}

func (e Endpoint) String() string {
	e.Sanitize()
	return e.Type + ":" + e.ID
}

// EntityHash hashes a (type, id) pair into the 64-bit value used for the
// descending-hash range ordering on tuple scans. FNV-1a with a NUL separator
// so ("ab","c") and ("a","bc") do not collide.
func EntityHash(entityType, entityID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(entityType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(entityID))
	return h.Sum64()
}

// Principal is an identity scoped to a space. Principals can be the subject
// of records and the endpoint of tuples.
type Principal struct {
	ID       string         `json:"id"`
	SpaceID  string         `json:"space_id,omitempty"`
	Rev      int64          `json:"_rev"`
	ParentID string         `json:"parent_id,omitempty"`
	Segment  string         `json:"segment,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// Record is a grant linking a principal to a (resource type, resource id)
// pair, with optional attributes. Identity is the composite key.
type Record struct {
	PrincipalID  string         `json:"principal_id"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	SpaceID      string         `json:"space_id,omitempty"`
	Rev          int64          `json:"_rev"`
	Attrs        map[string]any `json:"attrs,omitempty"`
}

// Tuple is a directed relationship: left endpoint -relation-> right endpoint,
// tagged with a strand that names the relation this tuple composes into.
//
// RidL/RidR are back-references populated by the optimizer when the tuple was
// materialized from the composition of two source tuples. The lifetime of a
// computed tuple is independent of its sources; there is no cascading delete.
type Tuple struct {
	ID       string         `json:"_id"`
	Rev      int64          `json:"_rev"`
	SpaceID  string         `json:"space_id,omitempty"`
	Strand   string         `json:"strand,omitempty"`
	Left     Endpoint       `json:"left"`
	Relation string         `json:"relation"`
	Right    Endpoint       `json:"right"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	LHash    uint64         `json:"-"`
	RHash    uint64         `json:"-"`
	RidL     string         `json:"rid_l,omitempty"`
	RidR     string         `json:"rid_r,omitempty"`
}

// Sanitize normalizes both endpoints and recomputes the endpoint hashes.
// Every mutation path must leave the tuple in this state.
func (t *Tuple) Sanitize() {
	t.Left.Sanitize()
	t.Right.Sanitize()
	t.LHash = t.Left.Hash()
	t.RHash = t.Right.Hash()
}

// Compose builds the tuple representing the transitive relationship implied
// by t1 followed by t2, where t1.Right and t2.Left meet at the intermediate
// entity and t1.Relation == t2.Strand. The result spans t1.Left -t2.Relation->
// t2.Right, inherits t2's strand so it can compose further, and carries
// back-references to both sources. The caller assigns the id.
func Compose(t1, t2 *Tuple) *Tuple {
	c := &Tuple{
		SpaceID:  t1.SpaceID,
		Strand:   t2.Strand,
		Left:     t1.Left,
		Relation: t2.Relation,
		Right:    t2.Right,
		RidL:     t1.ID,
		RidR:     t2.ID,
	}
	c.Sanitize()
	return c
}

// Tuplet is the one-sided projection of a tuple seen from a fixed endpoint:
// the tuple id, the far-side hash, and the relation/strand pair. Evaluators
// walk the graph on tuplets without carrying full rows.
type Tuplet struct {
	ID       string `json:"_id"`
	Hash     uint64 `json:"_hash"`
	Relation string `json:"relation"`
	Strand   string `json:"strand,omitempty"`
}

// CheckResult is the outcome of a check evaluation. Cost is negative when
// the budget was exhausted before the evaluator could decide. Tuple is set
// for direct and set answers; Path for graph answers.
type CheckResult struct {
	Found bool     `json:"found"`
	Cost  int      `json:"cost"`
	Tuple *Tuple   `json:"tuple,omitempty"`
	Path  []*Tuple `json:"path,omitempty"`
}

// DecodeAttrs parses a raw JSON attrs value, requiring a JSON object.
// nil and empty input decode to nil. A scalar or array is rejected so the
// caller can surface InvalidData before touching storage.
func DecodeAttrs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("attrs must be a JSON object: %w", err)
	}
	return attrs, nil
}
