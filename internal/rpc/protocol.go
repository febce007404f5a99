// Package rpc carries the weft wire protocol: newline-delimited JSON
// requests over a unix socket, one response per request. It is the only
// package that translates the storage error taxonomy into wire status
// strings.
package rpc

import (
	"encoding/json"

	"github.com/weftlabs/weft/internal/types"
)

// Operation constants for all weft requests.
const (
	OpPing     = "ping"
	OpStatus   = "status"
	OpShutdown = "shutdown"

	OpPrincipalCreate   = "principal_create"
	OpPrincipalRetrieve = "principal_retrieve"
	OpPrincipalUpdate   = "principal_update"
	OpPrincipalDelete   = "principal_delete"

	OpRecordGrant  = "record_grant"
	OpRecordRevoke = "record_revoke"
	OpRecordCheck  = "record_check"

	OpResourcesList           = "resources_list"
	OpResourcesListPrincipals = "resources_list_principals"

	OpEntitiesList           = "entities_list"
	OpEntitiesListPrincipals = "entities_list_principals"

	OpRelationCreate    = "relation_create"
	OpRelationDelete    = "relation_delete"
	OpRelationCheck     = "relation_check"
	OpRelationListLeft  = "relation_list_left"
	OpRelationListRight = "relation_list_right"
)

// Wire status strings. Handlers never invent new ones; statusFromErr owns
// the mapping.
const (
	StatusNotFound        = "not_found"
	StatusAlreadyExists   = "already_exists"
	StatusInvalidArgument = "invalid_argument"
	StatusAborted         = "aborted"
	StatusUnavailable     = "unavailable"
	StatusInternal        = "internal"
	StatusUnknown         = "unknown"
)

// Request is one client call. SpaceID is the tenant partition; empty selects
// the default space.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
	SpaceID   string          `json:"space_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is the single reply to a request. Status is set only on failure.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  string          `json:"status,omitempty"`
}

// PrincipalArgs carries a principal create or update.
type PrincipalArgs struct {
	ID       string          `json:"id,omitempty"`
	Rev      int64           `json:"_rev,omitempty"`
	ParentID string          `json:"parent_id,omitempty"`
	Segment  string          `json:"segment,omitempty"`
	Attrs    json.RawMessage `json:"attrs,omitempty"`
}

// PrincipalKeyArgs addresses one principal.
type PrincipalKeyArgs struct {
	ID string `json:"id"`
}

// RecordArgs carries a grant.
type RecordArgs struct {
	PrincipalID  string          `json:"principal_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Rev          int64           `json:"_rev,omitempty"`
	Attrs        json.RawMessage `json:"attrs,omitempty"`
}

// RecordKeyArgs addresses one record by its composite key. Used by revoke
// and by the record check.
type RecordKeyArgs struct {
	PrincipalID  string `json:"principal_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

// ResourcesListArgs lists records granted to a principal, optionally
// narrowed to one resource type.
type ResourcesListArgs struct {
	PrincipalID  string `json:"principal_id"`
	ResourceType string `json:"resource_type,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	PageToken    string `json:"page_token,omitempty"`
}

// ResourcesListPrincipalsArgs lists records over one resource.
type ResourcesListPrincipalsArgs struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Limit        int    `json:"limit,omitempty"`
	PageToken    string `json:"page_token,omitempty"`
}

// EntitiesListArgs projects tuplets from exactly one fixed endpoint.
// Exactly one of Left and Right must be set.
type EntitiesListArgs struct {
	Left     *types.Endpoint `json:"left,omitempty"`
	Right    *types.Endpoint `json:"right,omitempty"`
	Relation string          `json:"relation,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// EntitiesListPrincipalsArgs lists the principals related to an entity.
type EntitiesListPrincipalsArgs struct {
	Entity    types.Endpoint `json:"entity"`
	Relation  string         `json:"relation,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	PageToken string         `json:"page_token,omitempty"`
}

// RelationCreateArgs stores a tuple through the optimizer writer.
type RelationCreateArgs struct {
	Strand    string          `json:"strand,omitempty"`
	Left      types.Endpoint  `json:"left"`
	Relation  string          `json:"relation"`
	Right     types.Endpoint  `json:"right"`
	Attrs     json.RawMessage `json:"attrs,omitempty"`
	Strategy  string          `json:"optimize,omitempty"`
	CostLimit int             `json:"cost_limit,omitempty"`
}

// RelationKeyArgs addresses one tuple by id.
type RelationKeyArgs struct {
	ID string `json:"id"`
}

// RelationCheckArgs asks whether left is related to right.
type RelationCheckArgs struct {
	Left      types.Endpoint `json:"left"`
	Relation  string         `json:"relation"`
	Right     types.Endpoint `json:"right"`
	Strategy  string         `json:"strategy,omitempty"`
	CostLimit int            `json:"cost_limit,omitempty"`
}

// RelationListArgs lists tuples around one endpoint: list_left fixes the
// right endpoint, list_right fixes the left.
type RelationListArgs struct {
	Endpoint       types.Endpoint `json:"endpoint"`
	Relation       string         `json:"relation,omitempty"`
	Strand         string         `json:"strand,omitempty"`
	PrincipalsOnly bool           `json:"principals_only,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	PageToken      string         `json:"page_token,omitempty"`
}

// DeleteResult reports whether the addressed object existed.
type DeleteResult struct {
	Existed bool `json:"existed"`
}

// RecordCheckResult is the record_check answer: found plus the stored attrs.
type RecordCheckResult struct {
	Found bool           `json:"found"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// RecordPage is one page of records plus the continuation token, present
// only when the page came back full.
type RecordPage struct {
	Records   []*types.Record `json:"records"`
	PageToken string          `json:"page_token,omitempty"`
}

// TuplePage is one page of tuples.
type TuplePage struct {
	Tuples    []*types.Tuple `json:"tuples"`
	PageToken string         `json:"page_token,omitempty"`
}

// TupletList is the unpaged tuplet projection.
type TupletList struct {
	Tuplets []*types.Tuplet `json:"tuplets"`
}

// StatusResult is the daemon status report.
type StatusResult struct {
	Version    string `json:"version"`
	Backend    string `json:"backend"`
	UptimeSecs int64  `json:"uptime_secs"`
	Space      string `json:"space,omitempty"`
	Principals int64  `json:"principals"`
	Records    int64  `json:"records"`
	Tuples     int64  `json:"tuples"`
	KV         string `json:"kv,omitempty"`
}
