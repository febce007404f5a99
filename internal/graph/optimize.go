package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/weftlabs/weft/internal/id"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

// CreateResult reports what a Create stored. Cost is negative when the
// budget ran out, in which case the primary tuple was stored but no
// compositions were materialized.
type CreateResult struct {
	Tuple    *types.Tuple   `json:"tuple"`
	Cost     int            `json:"cost"`
	Computed []*types.Tuple `json:"computed_tuples,omitempty"`
}

// Create stores a tuple and, depending on strategy, eagerly materializes the
// compositions it enables so later checks resolve with a direct lookup.
//
// The graph strategy stores only the primary tuple and leaves resolution to
// the BFS. The direct strategy materializes every composition in both
// directions. The set strategy materializes only compositions whose new
// endpoint is a principal, which is exactly the shape the merge strategy
// cannot derive in one probe.
//
// Expansion looks left for stored tuples feeding this one (their relation
// equals the new tuple's strand) and right for stored tuples this one feeds
// (their strand equals the new tuple's relation). Each expansion hit costs
// one unit on top of one unit for the primary write. Compositions are stored
// best-effort: a composite collision with an existing tuple is not an error.
func (e *Evaluator) Create(ctx context.Context, t *types.Tuple, strategy types.Strategy, costLimit int) (*CreateResult, error) {
	switch strategy {
	case types.StrategyDirect, types.StrategyGraph, types.StrategySet:
	case "":
		strategy = types.StrategyGraph
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidStrategy, strategy)
	}

	t.Sanitize()
	if t.ID == "" {
		t.ID = id.New()
	}
	costLimit = e.clampCostLimit(costLimit)

	if err := e.store.StoreTuple(ctx, t); err != nil {
		return nil, err
	}
	cost := 1

	if strategy == types.StrategyGraph {
		return &CreateResult{Tuple: t, Cost: cost}, nil
	}

	var candidates []*types.Tuple

	// Tuples feeding into the new one: x -strand-> left, composing into
	// x -relation-> right. Under set only principal-rooted chains matter.
	if t.Strand != "" && (strategy == types.StrategyDirect || t.Right.IsPrincipal()) {
		feeders, err := e.listFeeders(ctx, t, costLimit, strategy == types.StrategySet)
		if err != nil {
			return nil, err
		}
		cost += len(feeders)
		for _, t1 := range feeders {
			candidates = append(candidates, types.Compose(t1, t))
		}
	}

	// Tuples the new one feeds: right -r.relation-> y with r.strand equal
	// to the new relation, composing into left -r.relation-> y. Under set
	// only chains landing on a principal matter here too. The fetch is
	// bounded by whatever budget the left expansion left over.
	if cost < costLimit && t.Relation != "" && (strategy == types.StrategyDirect || t.Left.IsPrincipal()) {
		fed, err := e.listFed(ctx, t, costLimit-cost, strategy == types.StrategySet)
		if err != nil {
			return nil, err
		}
		cost += len(fed)
		for _, t2 := range fed {
			candidates = append(candidates, types.Compose(t, t2))
		}
	}

	if cost > costLimit {
		return &CreateResult{Tuple: t, Cost: -cost}, nil
	}

	var computed []*types.Tuple
	for _, c := range candidates {
		c.ID = id.New()
		if err := e.store.StoreTuple(ctx, c); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			return nil, err
		}
		computed = append(computed, c)
	}
	return &CreateResult{Tuple: t, Cost: cost, Computed: computed}, nil
}

// listFeeders fetches the tuples landing on the new tuple's left endpoint
// with the composing relation, in one call bounded by the cost budget.
func (e *Evaluator) listFeeders(ctx context.Context, t *types.Tuple, limit int, principalsOnly bool) ([]*types.Tuple, error) {
	return e.store.ListLeft(ctx, t.SpaceID, t.Left, storage.ListOptions{
		Relation:       t.Strand,
		Limit:          limit,
		PrincipalsOnly: principalsOnly,
	})
}

// listFed fetches the tuples leaving the new tuple's right endpoint whose
// strand equals the new tuple's relation. principalsOnly keeps only tuples
// whose right endpoint is a principal.
func (e *Evaluator) listFed(ctx context.Context, t *types.Tuple, limit int, principalsOnly bool) ([]*types.Tuple, error) {
	return e.store.ListRight(ctx, t.SpaceID, t.Right, storage.ListOptions{
		Strand:         t.Relation,
		Limit:          limit,
		PrincipalsOnly: principalsOnly,
	})
}
