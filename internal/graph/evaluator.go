// Package graph holds the check evaluator and the optimizer writer.
//
// A check always starts with a direct composite lookup at cost 1. When that
// misses, the graph strategy walks the reversed relation graph breadth-first
// from the right endpoint, and the set strategy runs a two-sided ordered
// merge over the left fan-out and right fan-in. Both are bounded by a cost
// budget; an exhausted budget is reported as a negated cost.
//
// Strand semantics tie the strategies together: a tuple composes onto a
// successor when its relation equals the successor's strand. An empty strand
// makes a tuple a leaf that nothing composes onto.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

// DefaultCostLimit is the per-check budget applied when the caller passes
// zero.
const DefaultCostLimit = 1000

// MaxCostLimit caps any caller-supplied budget.
const MaxCostLimit = 65535

// ParseStrategy validates a wire strategy string. Empty defaults to graph
// for checks; Create applies its own default.
func ParseStrategy(s string) (types.Strategy, error) {
	switch types.Strategy(s) {
	case types.StrategyDirect, types.StrategyGraph, types.StrategySet:
		return types.Strategy(s), nil
	case "":
		return types.StrategyGraph, nil
	default:
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidStrategy, s)
	}
}

// Evaluator answers relationship checks and runs optimized creates against
// one storage backend. Evaluators are stateless and safe for concurrent use;
// the cost budget is per call.
type Evaluator struct {
	store            storage.Storage
	defaultCostLimit int
}

// NewEvaluator creates an evaluator. defaultCostLimit <= 0 selects
// DefaultCostLimit.
func NewEvaluator(store storage.Storage, defaultCostLimit int) *Evaluator {
	if defaultCostLimit <= 0 {
		defaultCostLimit = DefaultCostLimit
	}
	if defaultCostLimit > MaxCostLimit {
		defaultCostLimit = MaxCostLimit
	}
	return &Evaluator{store: store, defaultCostLimit: defaultCostLimit}
}

func (e *Evaluator) clampCostLimit(costLimit int) int {
	if costLimit <= 0 {
		return e.defaultCostLimit
	}
	if costLimit > MaxCostLimit {
		return MaxCostLimit
	}
	return costLimit
}

// Check evaluates "is left related to right by relation".
//
// The direct composite lookup always runs first at cost 1 and short-circuits
// regardless of strategy. The cost in the result is negated when the budget
// ran out before the evaluator could decide.
func (e *Evaluator) Check(ctx context.Context, spaceID string, left types.Endpoint, relation string, right types.Endpoint, strategy types.Strategy, costLimit int) (*types.CheckResult, error) {
	switch strategy {
	case types.StrategyDirect, types.StrategyGraph, types.StrategySet:
	case "":
		strategy = types.StrategyGraph
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidStrategy, strategy)
	}

	left.Sanitize()
	right.Sanitize()
	costLimit = e.clampCostLimit(costLimit)

	direct, err := e.store.LookupTuple(ctx, spaceID, left, right, relation, "")
	if err == nil {
		return &types.CheckResult{Found: true, Cost: 1, Tuple: direct}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if strategy == types.StrategyDirect {
		return &types.CheckResult{Found: false, Cost: 1}, nil
	}
	if costLimit <= 1 {
		// The direct probe consumed the whole budget.
		return &types.CheckResult{Found: false, Cost: -1}, nil
	}

	if strategy == types.StrategyGraph {
		return e.checkGraph(ctx, spaceID, left, relation, right, costLimit)
	}
	return e.checkSet(ctx, spaceID, left, relation, right, costLimit)
}
