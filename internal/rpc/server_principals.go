package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

// handlePrincipalStore serves both create and update: the storage upsert is
// revision-guarded either way, so the two operations share one path.
func (s *Server) handlePrincipalStore(ctx context.Context, req *Request) *Response {
	var args PrincipalArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	attrs, err := types.DecodeAttrs(args.Attrs)
	if err != nil {
		return errorResponse(fmt.Errorf("%w: %v", storage.ErrInvalidData, err))
	}

	p := &types.Principal{
		ID:       args.ID,
		SpaceID:  req.SpaceID,
		Rev:      args.Rev,
		ParentID: args.ParentID,
		Segment:  args.Segment,
		Attrs:    attrs,
	}
	if err := s.storage.StorePrincipal(ctx, p); err != nil {
		return errorResponse(err)
	}
	return successResponse(p)
}

func (s *Server) handlePrincipalRetrieve(ctx context.Context, req *Request) *Response {
	var args PrincipalKeyArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	p, err := s.storage.RetrievePrincipal(ctx, req.SpaceID, args.ID)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(p)
}

func (s *Server) handlePrincipalDelete(ctx context.Context, req *Request) *Response {
	var args PrincipalKeyArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	existed, err := s.storage.DiscardPrincipal(ctx, req.SpaceID, args.ID)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(&DeleteResult{Existed: existed})
}
