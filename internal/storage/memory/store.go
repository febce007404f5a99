// Package memory implements the storage interface on hashicorp/go-memdb.
//
// The memory backend serves tests and single-process development. It keeps
// the exact contract of the mysql backend: revision-guarded upserts, the
// tuple composite-key uniqueness, foreign-key refusals on principal
// references, and hash-descending list ordering.
package memory

import (
	"context"
	"maps"

	"github.com/hashicorp/go-memdb"

	"github.com/weftlabs/weft/internal/storage"
)

const (
	tablePrincipal = "principal"
	tableRecord    = "record"
	tableTuple     = "tuple"
)

// Row types are flat so memdb field indexers can reach every key component.
// Conversions to and from the shared value types happen at the store
// boundary; rows never escape this package.

type principalRow struct {
	SpaceID  string
	ID       string
	Rev      int64
	ParentID string
	Segment  string
	Attrs    map[string]any
}

type recordRow struct {
	SpaceID      string
	PrincipalID  string
	ResourceType string
	ResourceID   string
	Rev          int64
	Attrs        map[string]any
}

type tupleRow struct {
	SpaceID      string
	ID           string
	Rev          int64
	Strand       string
	LType        string
	LID          string
	LPrincipalID string
	Relation     string
	RType        string
	RID          string
	RPrincipalID string
	Attrs        map[string]any
	LHash        uint64
	RHash        uint64
	RidL         string
	RidR         string
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tablePrincipal: {
				Name: tablePrincipal,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "ID"},
						}},
					},
					"parent": {
						Name:         "parent",
						AllowMissing: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "ParentID"},
						}},
					},
				},
			},
			tableRecord: {
				Name: tableRecord,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "PrincipalID"},
							&memdb.StringFieldIndex{Field: "ResourceType"},
							&memdb.StringFieldIndex{Field: "ResourceID"},
						}},
					},
					"principal": {
						Name: "principal",
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "PrincipalID"},
						}},
					},
					"resource": {
						Name: "resource",
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "ResourceType"},
							&memdb.StringFieldIndex{Field: "ResourceID"},
						}},
					},
				},
			},
			tableTuple: {
				Name: tableTuple,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "ID"},
						}},
					},
					// Fan-in: all tuples ending at an entity.
					"right": {
						Name: "right",
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "RType"},
							&memdb.StringFieldIndex{Field: "RID"},
						}},
					},
					// Fan-out: all tuples starting at an entity.
					"left": {
						Name: "left",
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "SpaceID"},
							&memdb.StringFieldIndex{Field: "LType"},
							&memdb.StringFieldIndex{Field: "LID"},
						}},
					},
				},
			},
		},
	}
}

// Store implements storage.Storage in process memory.
type Store struct {
	db *memdb.MemDB
}

// New creates an empty memory store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases nothing; the store is garbage-collected with its owner.
func (s *Store) Close() error {
	return nil
}

// Statistics reports per-space row counts.
func (s *Store) Statistics(ctx context.Context, spaceID string) (*storage.Statistics, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	stats := &storage.Statistics{}
	for _, c := range []struct {
		table string
		n     *int64
	}{
		{tablePrincipal, &stats.Principals},
		{tableRecord, &stats.Records},
		{tableTuple, &stats.Tuples},
	} {
		it, err := txn.Get(c.table, "id_prefix", spaceID)
		if err != nil {
			return nil, err
		}
		// The prefix scan matches any space id starting with spaceID, so
		// each row's own space id is re-checked.
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if rowSpace(obj) == spaceID {
				*c.n++
			}
		}
	}
	return stats, nil
}

func rowSpace(obj any) string {
	switch r := obj.(type) {
	case *principalRow:
		return r.SpaceID
	case *recordRow:
		return r.SpaceID
	case *tupleRow:
		return r.SpaceID
	}
	return ""
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	return maps.Clone(attrs)
}
