package graph

import (
	"context"

	"github.com/weftlabs/weft/internal/types"
)

// checkSet intersects the fan-out of the left endpoint with the fan-in of
// the right endpoint. Both lists come back ordered by the far-side hash
// descending, so a two-pointer merge finds every two-hop chain without a
// nested scan. Each pointer step or pair probe costs one unit.
func (e *Evaluator) checkSet(ctx context.Context, spaceID string, left types.Endpoint, relation string, right types.Endpoint, costLimit int) (*types.CheckResult, error) {
	out, err := e.fanOut(ctx, spaceID, left, "", costLimit, false)
	if err != nil {
		return nil, err
	}
	in, err := e.fanIn(ctx, spaceID, right, relation, costLimit)
	if err != nil {
		return nil, err
	}

	cost := 1 // direct probe already spent
	i, j := 0, 0
	for i < len(out) && j < len(in) {
		if cost >= costLimit {
			return &types.CheckResult{Found: false, Cost: -cost}, nil
		}
		cost++
		h1, h2 := out[i].RHash, in[j].LHash
		switch {
		case h1 > h2:
			i++
		case h1 < h2:
			j++
		default:
			// Hash runs can collide, so probe every pair in the run.
			ri := runEnd(out, i, func(t *types.Tuple) uint64 { return t.RHash })
			rj := runEnd(in, j, func(t *types.Tuple) uint64 { return t.LHash })
			for a := i; a < ri; a++ {
				for b := j; b < rj; b++ {
					if cost >= costLimit {
						return &types.CheckResult{Found: false, Cost: -cost}, nil
					}
					cost++
					t1, t2 := out[a], in[b]
					if t1.Relation != t2.Strand {
						continue
					}
					if !t1.Right.Equal(t2.Left) {
						continue
					}
					return &types.CheckResult{
						Found: true,
						Cost:  cost,
						Tuple: types.Compose(t1, t2),
						Path:  []*types.Tuple{t1, t2},
					}, nil
				}
			}
			i, j = ri, rj
		}
	}
	return &types.CheckResult{Found: false, Cost: cost}, nil
}

func runEnd(ts []*types.Tuple, start int, hash func(*types.Tuple) uint64) int {
	end := start + 1
	for end < len(ts) && hash(ts[end]) == hash(ts[start]) {
		end++
	}
	return end
}
