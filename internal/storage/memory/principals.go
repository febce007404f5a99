package memory

import (
	"context"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

func principalToRow(p *types.Principal) *principalRow {
	return &principalRow{
		SpaceID:  p.SpaceID,
		ID:       p.ID,
		Rev:      p.Rev,
		ParentID: p.ParentID,
		Segment:  p.Segment,
		Attrs:    cloneAttrs(p.Attrs),
	}
}

func rowToPrincipal(row *principalRow) *types.Principal {
	return &types.Principal{
		ID:       row.ID,
		SpaceID:  row.SpaceID,
		Rev:      row.Rev,
		ParentID: row.ParentID,
		Segment:  row.Segment,
		Attrs:    cloneAttrs(row.Attrs),
	}
}

// StorePrincipal performs the revision-guarded upsert. On success the new
// revision is written back onto p; on ErrRevisionMismatch p is untouched.
func (s *Store) StorePrincipal(ctx context.Context, p *types.Principal) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if p.ParentID != "" {
		parent, err := txn.First(tablePrincipal, "id", p.SpaceID, p.ParentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return storage.ErrInvalidParentID
		}
	}

	existing, err := txn.First(tablePrincipal, "id", p.SpaceID, p.ID)
	if err != nil {
		return err
	}

	row := principalToRow(p)
	if existing != nil {
		stored := existing.(*principalRow)
		if stored.Rev != p.Rev {
			return storage.ErrRevisionMismatch
		}
		row.Rev = stored.Rev + 1
	}
	if err := txn.Insert(tablePrincipal, row); err != nil {
		return err
	}
	txn.Commit()
	p.Rev = row.Rev
	return nil
}

func (s *Store) RetrievePrincipal(ctx context.Context, spaceID, principalID string) (*types.Principal, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(tablePrincipal, "id", spaceID, principalID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, storage.ErrNotFound
	}
	return rowToPrincipal(obj.(*principalRow)), nil
}

// DiscardPrincipal deletes by id, refusing while records, tuple endpoints,
// or child principals still reference the principal.
func (s *Store) DiscardPrincipal(ctx context.Context, spaceID, principalID string) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(tablePrincipal, "id", spaceID, principalID)
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, nil
	}

	for _, ref := range []struct {
		table string
		index string
		args  []any
	}{
		{tableRecord, "principal", []any{spaceID, principalID}},
		{tableTuple, "left", []any{spaceID, types.PrincipalEntityType, principalID}},
		{tableTuple, "right", []any{spaceID, types.PrincipalEntityType, principalID}},
		{tablePrincipal, "parent", []any{spaceID, principalID}},
	} {
		hit, err := txn.First(ref.table, ref.index, ref.args...)
		if err != nil {
			return false, err
		}
		if hit != nil {
			return false, storage.ErrInvalidKey
		}
	}

	if err := txn.Delete(tablePrincipal, obj); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}
