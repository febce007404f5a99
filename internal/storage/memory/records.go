package memory

import (
	"context"
	"sort"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

func recordToRow(r *types.Record) *recordRow {
	return &recordRow{
		SpaceID:      r.SpaceID,
		PrincipalID:  r.PrincipalID,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		Rev:          r.Rev,
		Attrs:        cloneAttrs(r.Attrs),
	}
}

func rowToRecord(row *recordRow) *types.Record {
	return &types.Record{
		PrincipalID:  row.PrincipalID,
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		SpaceID:      row.SpaceID,
		Rev:          row.Rev,
		Attrs:        cloneAttrs(row.Attrs),
	}
}

// StoreRecord upserts by the (principal, resource type, resource id)
// composite. Attrs are overwritten on update and the revision increments.
func (s *Store) StoreRecord(ctx context.Context, r *types.Record) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	principal, err := txn.First(tablePrincipal, "id", r.SpaceID, r.PrincipalID)
	if err != nil {
		return err
	}
	if principal == nil {
		return storage.ErrInvalidKey
	}

	existing, err := txn.First(tableRecord, "id", r.SpaceID, r.PrincipalID, r.ResourceType, r.ResourceID)
	if err != nil {
		return err
	}

	row := recordToRow(r)
	if existing != nil {
		stored := existing.(*recordRow)
		if stored.Rev != r.Rev {
			return storage.ErrRevisionMismatch
		}
		row.Rev = stored.Rev + 1
	}
	if err := txn.Insert(tableRecord, row); err != nil {
		return err
	}
	txn.Commit()
	r.Rev = row.Rev
	return nil
}

func (s *Store) RetrieveRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (*types.Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(tableRecord, "id", spaceID, principalID, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, storage.ErrNotFound
	}
	return rowToRecord(obj.(*recordRow)), nil
}

func (s *Store) DiscardRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(tableRecord, "id", spaceID, principalID, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, nil
	}
	if err := txn.Delete(tableRecord, obj); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

// ListRecordsByPrincipal pages the records granted to one principal, newest
// resource id first, resuming strictly below lastID.
func (s *Store) ListRecordsByPrincipal(ctx context.Context, spaceID, principalID, resourceType, lastID string, limit int) ([]*types.Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableRecord, "principal", spaceID, principalID)
	if err != nil {
		return nil, err
	}

	var rows []*recordRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*recordRow)
		if resourceType != "" && row.ResourceType != resourceType {
			continue
		}
		if lastID != "" && row.ResourceID >= lastID {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ResourceID > rows[j].ResourceID })

	out := make([]*types.Record, 0, len(rows))
	for _, row := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, rowToRecord(row))
	}
	return out, nil
}

// ListRecordsByResource pages the records over one resource, ordered by
// principal id descending with lastID as the exclusive cursor.
func (s *Store) ListRecordsByResource(ctx context.Context, spaceID, resourceType, resourceID, lastID string, limit int) ([]*types.Record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableRecord, "resource", spaceID, resourceType, resourceID)
	if err != nil {
		return nil, err
	}

	var rows []*recordRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		row := obj.(*recordRow)
		if lastID != "" && row.PrincipalID >= lastID {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PrincipalID > rows[j].PrincipalID })

	out := make([]*types.Record, 0, len(rows))
	for _, row := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, rowToRecord(row))
	}
	return out, nil
}
