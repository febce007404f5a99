package graph

import (
	"context"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

type bfsNode struct {
	// want is the relation an incoming tuple must carry to extend the
	// chain at this node.
	want   string
	entity types.Endpoint
	path   []*types.Tuple
}

func visitKey(want string, e types.Endpoint) string {
	return want + "\x00" + e.Type + "\x00" + e.ID
}

// checkGraph walks the relation graph backwards from the right endpoint.
// Each node expansion costs one unit; the walk stops as soon as a chain
// reaches the left endpoint or the budget runs out.
func (e *Evaluator) checkGraph(ctx context.Context, spaceID string, left types.Endpoint, relation string, right types.Endpoint, costLimit int) (*types.CheckResult, error) {
	cost := 1 // direct probe already spent
	visited := make(map[string]struct{})
	queue := []bfsNode{{want: relation, entity: right}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		key := visitKey(node.want, node.entity)
		if _, seen := visited[key]; seen {
			continue
		}
		if cost >= costLimit {
			return &types.CheckResult{Found: false, Cost: -cost}, nil
		}
		visited[key] = struct{}{}
		cost++

		incoming, err := e.fanIn(ctx, spaceID, node.entity, node.want, costLimit)
		if err != nil {
			return nil, err
		}
		for _, t := range incoming {
			path := make([]*types.Tuple, 0, len(node.path)+1)
			path = append(path, t)
			path = append(path, node.path...)
			if t.Left.Equal(left) {
				return &types.CheckResult{Found: true, Cost: cost, Path: path}, nil
			}
			if t.Strand == "" {
				// Leaf tuples cannot be composed onto.
				continue
			}
			queue = append(queue, bfsNode{want: t.Strand, entity: t.Left, path: path})
		}
	}
	return &types.CheckResult{Found: false, Cost: cost}, nil
}

// fanIn fetches the tuples landing on entity with the given relation, in one
// call bounded by the cost budget. The id cursor is never used here: it
// filters on the far-side id against a hash ordering, which is only safe for
// the externally tokenized listings.
func (e *Evaluator) fanIn(ctx context.Context, spaceID string, entity types.Endpoint, relation string, limit int) ([]*types.Tuple, error) {
	return e.store.ListLeft(ctx, spaceID, entity, storage.ListOptions{
		Relation: relation,
		Limit:    limit,
	})
}

// fanOut is the mirror image: tuples leaving entity. principalsOnly keeps
// only tuples whose right endpoint is a principal.
func (e *Evaluator) fanOut(ctx context.Context, spaceID string, entity types.Endpoint, relation string, limit int, principalsOnly bool) ([]*types.Tuple, error) {
	return e.store.ListRight(ctx, spaceID, entity, storage.ListOptions{
		Relation:       relation,
		Limit:          limit,
		PrincipalsOnly: principalsOnly,
	})
}
