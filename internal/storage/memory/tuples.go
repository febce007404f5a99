package memory

import (
	"context"
	"sort"

	"github.com/hashicorp/go-memdb"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

func tupleToRow(t *types.Tuple) *tupleRow {
	return &tupleRow{
		SpaceID:      t.SpaceID,
		ID:           t.ID,
		Rev:          t.Rev,
		Strand:       t.Strand,
		LType:        t.Left.Type,
		LID:          t.Left.ID,
		LPrincipalID: t.Left.PrincipalID,
		Relation:     t.Relation,
		RType:        t.Right.Type,
		RID:          t.Right.ID,
		RPrincipalID: t.Right.PrincipalID,
		Attrs:        cloneAttrs(t.Attrs),
		LHash:        t.LHash,
		RHash:        t.RHash,
		RidL:         t.RidL,
		RidR:         t.RidR,
	}
}

func rowToTuple(row *tupleRow) *types.Tuple {
	t := &types.Tuple{
		ID:       row.ID,
		Rev:      row.Rev,
		SpaceID:  row.SpaceID,
		Strand:   row.Strand,
		Left:     types.Endpoint{Type: row.LType, ID: row.LID, PrincipalID: row.LPrincipalID},
		Relation: row.Relation,
		Right:    types.Endpoint{Type: row.RType, ID: row.RID, PrincipalID: row.RPrincipalID},
		Attrs:    cloneAttrs(row.Attrs),
		LHash:    row.LHash,
		RHash:    row.RHash,
		RidL:     row.RidL,
		RidR:     row.RidR,
	}
	return t
}

func (s *Store) checkEndpointPrincipal(txn *memdb.Txn, spaceID string, e types.Endpoint) error {
	if !e.IsPrincipal() {
		return nil
	}
	obj, err := txn.First(tablePrincipal, "id", spaceID, e.PrincipalID)
	if err != nil {
		return err
	}
	if obj == nil {
		return storage.ErrInvalidKey
	}
	return nil
}

// StoreTuple upserts by tuple id. A different tuple holding the same
// (strand, left, relation, right) composite fails with ErrAlreadyExists;
// that is the uniqueness the optimizer leans on for idempotent
// materialization.
func (s *Store) StoreTuple(ctx context.Context, t *types.Tuple) error {
	t.Sanitize()

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := s.checkEndpointPrincipal(txn, t.SpaceID, t.Left); err != nil {
		return err
	}
	if err := s.checkEndpointPrincipal(txn, t.SpaceID, t.Right); err != nil {
		return err
	}

	// Composite-key scan over the left fan-out of t.Left.
	it, err := txn.Get(tableTuple, "left", t.SpaceID, t.Left.Type, t.Left.ID)
	if err != nil {
		return err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*tupleRow)
		if row.ID != t.ID &&
			row.Strand == t.Strand &&
			row.Relation == t.Relation &&
			row.RType == t.Right.Type && row.RID == t.Right.ID {
			return storage.ErrAlreadyExists
		}
	}

	existing, err := txn.First(tableTuple, "id", t.SpaceID, t.ID)
	if err != nil {
		return err
	}

	row := tupleToRow(t)
	if existing != nil {
		stored := existing.(*tupleRow)
		if stored.Rev != t.Rev {
			return storage.ErrRevisionMismatch
		}
		row.Rev = stored.Rev + 1
	}
	if err := txn.Insert(tableTuple, row); err != nil {
		return err
	}
	txn.Commit()
	t.Rev = row.Rev
	return nil
}

// DiscardTuple deletes by id; discarding an absent tuple is a no-op.
func (s *Store) DiscardTuple(ctx context.Context, spaceID, tupleID string) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(tableTuple, "id", spaceID, tupleID)
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, nil
	}
	if err := txn.Delete(tableTuple, obj); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

func (s *Store) RetrieveTuple(ctx context.Context, spaceID, tupleID string) (*types.Tuple, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(tableTuple, "id", spaceID, tupleID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, storage.ErrNotFound
	}
	return rowToTuple(obj.(*tupleRow)), nil
}

// LookupTuple matches the full composite; empty relation or strand are
// wildcards. At most one tuple is returned.
func (s *Store) LookupTuple(ctx context.Context, spaceID string, left, right types.Endpoint, relation, strand string) (*types.Tuple, error) {
	left.Sanitize()
	right.Sanitize()

	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableTuple, "left", spaceID, left.Type, left.ID)
	if err != nil {
		return nil, err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*tupleRow)
		if row.RType != right.Type || row.RID != right.ID {
			continue
		}
		if relation != "" && row.Relation != relation {
			continue
		}
		if strand != "" && row.Strand != strand {
			continue
		}
		return rowToTuple(row), nil
	}
	return nil, storage.ErrNotFound
}

// listFiltered drains a tuple iterator applying the shared option filters.
// farLeft selects which side is the far side for cursor and principal
// filtering.
func listFiltered(it memdb.ResultIterator, opt storage.ListOptions, farLeft bool) []*tupleRow {
	var rows []*tupleRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*tupleRow)
		if opt.Relation != "" && row.Relation != opt.Relation {
			continue
		}
		if opt.Strand != "" && row.Strand != opt.Strand {
			continue
		}
		farID, farPrincipal := row.RID, row.RPrincipalID
		if farLeft {
			farID, farPrincipal = row.LID, row.LPrincipalID
		}
		if opt.PrincipalsOnly && farPrincipal == "" {
			continue
		}
		if opt.LastID != "" && farID >= opt.LastID {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// ListLeft returns tuples whose right endpoint equals the given endpoint,
// ordered by left hash descending, then left entity id descending.
func (s *Store) ListLeft(ctx context.Context, spaceID string, right types.Endpoint, opt storage.ListOptions) ([]*types.Tuple, error) {
	right.Sanitize()

	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableTuple, "right", spaceID, right.Type, right.ID)
	if err != nil {
		return nil, err
	}
	rows := listFiltered(it, opt, true)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LHash != rows[j].LHash {
			return rows[i].LHash > rows[j].LHash
		}
		return rows[i].LID > rows[j].LID
	})
	return takeTuples(rows, opt.Limit), nil
}

// ListRight is the mirror image: tuples whose left endpoint equals the given
// endpoint, ordered by right hash descending, then right entity id
// descending.
func (s *Store) ListRight(ctx context.Context, spaceID string, left types.Endpoint, opt storage.ListOptions) ([]*types.Tuple, error) {
	left.Sanitize()

	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableTuple, "left", spaceID, left.Type, left.ID)
	if err != nil {
		return nil, err
	}
	rows := listFiltered(it, opt, false)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RHash != rows[j].RHash {
			return rows[i].RHash > rows[j].RHash
		}
		return rows[i].RID > rows[j].RID
	})
	return takeTuples(rows, opt.Limit), nil
}

func takeTuples(rows []*tupleRow, limit int) []*types.Tuple {
	out := make([]*types.Tuple, 0, len(rows))
	for _, row := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, rowToTuple(row))
	}
	return out
}

// ListTuplets projects tuples from exactly one fixed endpoint into far-side
// tuplets.
func (s *Store) ListTuplets(ctx context.Context, spaceID string, left, right *types.Endpoint, relation string, limit int) ([]*types.Tuplet, error) {
	if (left == nil) == (right == nil) {
		return nil, storage.ErrInvalidListArgs
	}

	opt := storage.ListOptions{Relation: relation, Limit: limit}
	var tuples []*types.Tuple
	var err error
	if left != nil {
		tuples, err = s.ListRight(ctx, spaceID, *left, opt)
	} else {
		tuples, err = s.ListLeft(ctx, spaceID, *right, opt)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*types.Tuplet, 0, len(tuples))
	for _, t := range tuples {
		hash := t.RHash
		if right != nil {
			hash = t.LHash
		}
		out = append(out, &types.Tuplet{ID: t.ID, Hash: hash, Relation: t.Relation, Strand: t.Strand})
	}
	return out, nil
}
