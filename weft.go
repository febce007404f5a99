// Package weft provides a minimal public API for embedding the weft
// authorization core in other Go programs.
//
// Most callers should run the daemon and talk to it over the socket with
// rpc.Dial. This package exports only the essential types and constructors
// for programs that want to evaluate checks in-process against their own
// store.
package weft

import (
	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/storage/memory"
	"github.com/weftlabs/weft/internal/types"
)

// Core types for working with principals, records, and relation tuples
type (
	Principal   = types.Principal
	Record      = types.Record
	Tuple       = types.Tuple
	Tuplet      = types.Tuplet
	Endpoint    = types.Endpoint
	CheckResult = types.CheckResult
	Strategy    = types.Strategy
)

// Evaluation strategies
const (
	StrategyDirect = types.StrategyDirect
	StrategyGraph  = types.StrategyGraph
	StrategySet    = types.StrategySet
)

// Storage is the contract an embedder's store must satisfy.
type Storage = storage.Storage

// ListOptions narrows and pages tuple range scans.
type ListOptions = storage.ListOptions

// Evaluator answers checks and runs the optimizer writer.
type Evaluator = graph.Evaluator

// EntityEndpoint returns an entity-form endpoint.
func EntityEndpoint(entityType, entityID string) Endpoint {
	return types.EntityEndpoint(entityType, entityID)
}

// PrincipalEndpoint returns a principal-form endpoint.
func PrincipalEndpoint(principalID string) Endpoint {
	return types.PrincipalEndpoint(principalID)
}

// NewMemoryStorage returns an in-memory store, useful for tests and
// single-process embedding.
func NewMemoryStorage() (Storage, error) {
	return memory.New()
}

// NewEvaluator builds an evaluator over any store. A non-positive
// defaultCostLimit selects the built-in default budget.
func NewEvaluator(store Storage, defaultCostLimit int) *Evaluator {
	return graph.NewEvaluator(store, defaultCostLimit)
}
