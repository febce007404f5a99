package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weftlabs/weft/internal/page"
	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

func (s *Server) handleRecordGrant(ctx context.Context, req *Request) *Response {
	var args RecordArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	attrs, err := types.DecodeAttrs(args.Attrs)
	if err != nil {
		return errorResponse(fmt.Errorf("%w: %v", storage.ErrInvalidData, err))
	}

	r := &types.Record{
		PrincipalID:  args.PrincipalID,
		ResourceType: args.ResourceType,
		ResourceID:   args.ResourceID,
		SpaceID:      req.SpaceID,
		Rev:          args.Rev,
		Attrs:        attrs,
	}
	if err := s.storage.StoreRecord(ctx, r); err != nil {
		return errorResponse(err)
	}
	return successResponse(r)
}

func (s *Server) handleRecordRevoke(ctx context.Context, req *Request) *Response {
	var args RecordKeyArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	existed, err := s.storage.DiscardRecord(ctx, req.SpaceID,
		args.PrincipalID, args.ResourceType, args.ResourceID)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(&DeleteResult{Existed: existed})
}

// handleRecordCheck answers "does this principal hold this resource" by
// composite lookup; a miss is a successful found=false answer, not an error.
func (s *Server) handleRecordCheck(ctx context.Context, req *Request) *Response {
	var args RecordKeyArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	r, err := s.storage.RetrieveRecord(ctx, req.SpaceID,
		args.PrincipalID, args.ResourceType, args.ResourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return successResponse(&RecordCheckResult{Found: false})
		}
		return errorResponse(err)
	}
	return successResponse(&RecordCheckResult{Found: true, Attrs: r.Attrs})
}

func (s *Server) handleResourcesList(ctx context.Context, req *Request) *Response {
	var args ResourcesListArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	lastID, err := page.DecodeToken(args.PageToken)
	if err != nil {
		return invalidArgs(fmt.Errorf("bad page token: %w", err))
	}
	limit := page.ClampLimit(args.Limit)

	records, err := s.storage.ListRecordsByPrincipal(ctx, req.SpaceID,
		args.PrincipalID, args.ResourceType, lastID, limit)
	if err != nil {
		return errorResponse(err)
	}

	out := &RecordPage{Records: records}
	if len(records) == limit {
		out.PageToken = page.EncodeToken(records[len(records)-1].ResourceID)
	}
	return successResponse(out)
}

func (s *Server) handleResourcesListPrincipals(ctx context.Context, req *Request) *Response {
	var args ResourcesListPrincipalsArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return invalidArgs(err)
	}

	lastID, err := page.DecodeToken(args.PageToken)
	if err != nil {
		return invalidArgs(fmt.Errorf("bad page token: %w", err))
	}
	limit := page.ClampLimit(args.Limit)

	records, err := s.storage.ListRecordsByResource(ctx, req.SpaceID,
		args.ResourceType, args.ResourceID, lastID, limit)
	if err != nil {
		return errorResponse(err)
	}

	out := &RecordPage{Records: records}
	if len(records) == limit {
		out.PageToken = page.EncodeToken(records[len(records)-1].PrincipalID)
	}
	return successResponse(out)
}
