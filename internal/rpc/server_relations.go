package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weftlabs/weft/internal/graph"
	"github.com/weftlabs/weft/internal/page"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

// handleRelationCreate stores a tuple through the optimizer writer so that
// materialized compositions land together with the primary tuple.
func (s *Server) handleRelationCreate(ctx context.Context, req *Request) *Response {
	var args RelationCreateArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	strategy, err := graph.ParseStrategy(args.Strategy)
	if err != nil {
		return errorResponse(err)
	}
	attrs, err := types.DecodeAttrs(args.Attrs)
	if err != nil {
		return errorResponse(fmt.Errorf("%w: %v", storage.ErrInvalidData, err))
	}

	t := &types.Tuple{
		SpaceID:  req.SpaceID,
		Strand:   args.Strand,
		Left:     args.Left,
		Relation: args.Relation,
		Right:    args.Right,
		Attrs:    attrs,
	}
	res, err := s.evaluator.Create(ctx, t, strategy, args.CostLimit)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(res)
}

func (s *Server) handleRelationDelete(ctx context.Context, req *Request) *Response {
	var args RelationKeyArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	existed, err := s.storage.DiscardTuple(ctx, req.SpaceID, args.ID)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(&DeleteResult{Existed: existed})
}

func (s *Server) handleRelationCheck(ctx context.Context, req *Request) *Response {
	var args RelationCheckArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	strategy, err := graph.ParseStrategy(args.Strategy)
	if err != nil {
		return errorResponse(err)
	}

	res, err := s.evaluator.Check(ctx, req.SpaceID,
		args.Left, args.Relation, args.Right, strategy, args.CostLimit)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(res)
}

func (s *Server) handleRelationListLeft(ctx context.Context, req *Request) *Response {
	return s.listRelations(ctx, req, true)
}

func (s *Server) handleRelationListRight(ctx context.Context, req *Request) *Response {
	return s.listRelations(ctx, req, false)
}

// listRelations serves both listing directions. The continuation cursor is
// the far-side entity id: left entity id when listing the fan-in of a right
// endpoint, right entity id for the mirror.
func (s *Server) listRelations(ctx context.Context, req *Request, fanIn bool) *Response {
	var args RelationListArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	lastID, err := page.DecodeToken(args.PageToken)
	if err != nil {
		return invalidArgs(fmt.Errorf("bad page token: %w", err))
	}
	opts := storage.ListOptions{
		Relation:       args.Relation,
		Strand:         args.Strand,
		LastID:         lastID,
		Limit:          page.ClampLimit(args.Limit),
		PrincipalsOnly: args.PrincipalsOnly,
	}

	var tuples []*types.Tuple
	if fanIn {
		tuples, err = s.storage.ListLeft(ctx, req.SpaceID, args.Endpoint, opts)
	} else {
		tuples, err = s.storage.ListRight(ctx, req.SpaceID, args.Endpoint, opts)
	}
	if err != nil {
		return errorResponse(err)
	}

	out := &TuplePage{Tuples: tuples}
	if len(tuples) == opts.Limit {
		last := tuples[len(tuples)-1]
		if fanIn {
			out.PageToken = page.EncodeToken(last.Left.ID)
		} else {
			out.PageToken = page.EncodeToken(last.Right.ID)
		}
	}
	return successResponse(out)
}

func (s *Server) handleEntitiesList(ctx context.Context, req *Request) *Response {
	var args EntitiesListArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	tuplets, err := s.storage.ListTuplets(ctx, req.SpaceID,
		args.Left, args.Right, args.Relation, page.ClampLimit(args.Limit))
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(&TupletList{Tuplets: tuplets})
}

// handleEntitiesListPrincipals lists the principals related to an entity:
// the fan-in of the entity restricted to principal left endpoints, paginated
// on the principal id.
func (s *Server) handleEntitiesListPrincipals(ctx context.Context, req *Request) *Response {
	var args EntitiesListPrincipalsArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	lastID, err := page.DecodeToken(args.PageToken)
	if err != nil {
		return invalidArgs(fmt.Errorf("bad page token: %w", err))
	}
	opts := storage.ListOptions{
		Relation:       args.Relation,
		LastID:         lastID,
		Limit:          page.ClampLimit(args.Limit),
		PrincipalsOnly: true,
	}

	tuples, err := s.storage.ListLeft(ctx, req.SpaceID, args.Entity, opts)
	if err != nil {
		return errorResponse(err)
	}

	out := &TuplePage{Tuples: tuples}
	if len(tuples) == opts.Limit {
		out.PageToken = page.EncodeToken(tuples[len(tuples)-1].Left.PrincipalID)
	}
	return successResponse(out)
}
