package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/weftlabs/weft/internal/storage"
)

// statusFromErr maps a core error to its wire status. Unknown errors become
// internal; transport-level failures are marked unknown by the caller.
func statusFromErr(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return StatusAlreadyExists
	case errors.Is(err, storage.ErrRevisionMismatch):
		return StatusAborted
	case errors.Is(err, storage.ErrInvalidData),
		errors.Is(err, storage.ErrInvalidParentID),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, storage.ErrInvalidListArgs),
		errors.Is(err, storage.ErrInvalidStrategy):
		return StatusInvalidArgument
	case errors.Is(err, storage.ErrTimeout),
		errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return StatusUnavailable
	default:
		return StatusInternal
	}
}

func errorResponse(err error) *Response {
	return &Response{Error: err.Error(), Status: statusFromErr(err)}
}

func invalidArgs(err error) *Response {
	return &Response{
		Error:  fmt.Sprintf("invalid arguments: %v", err),
		Status: StatusInvalidArgument,
	}
}

func successResponse(data any) *Response {
	if data == nil {
		return &Response{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling response data: %v\n", err)
		return &Response{Error: "response marshaling failed", Status: StatusInternal}
	}
	return &Response{Success: true, Data: raw}
}
