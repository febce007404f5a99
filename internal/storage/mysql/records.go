package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

const recordColumns = "principal_id, resource_type, resource_id, space_id, rev, attrs"

func scanRecord(row interface{ Scan(...any) error }) (*types.Record, error) {
	var r types.Record
	var attrs []byte
	if err := row.Scan(&r.PrincipalID, &r.ResourceType, &r.ResourceID, &r.SpaceID, &r.Rev, &attrs); err != nil {
		return nil, err
	}
	decoded, err := unmarshalAttrs(attrs)
	if err != nil {
		return nil, err
	}
	r.Attrs = decoded
	return &r, nil
}

// StoreRecord upserts by the (principal, resource type, resource id)
// composite with the same insert-then-guarded-update pattern as principals.
func (s *Store) StoreRecord(ctx context.Context, r *types.Record) error {
	attrs, err := marshalAttrs(r.Attrs)
	if err != nil {
		return err
	}

	return s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, insErr := db.ExecContext(ctx, `
			INSERT INTO records (space_id, principal_id, resource_type, resource_id, rev, attrs)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.SpaceID, r.PrincipalID, r.ResourceType, r.ResourceID, r.Rev, attrs)
		if insErr == nil {
			return nil
		}
		if me, ok := mysqlErr(insErr); !ok || me.Number != errDupEntry {
			return mapWriteError(insErr, storage.ErrInvalidKey)
		}

		res, updErr := db.ExecContext(ctx, `
			UPDATE records
			SET rev = rev + 1, attrs = ?
			WHERE space_id = ? AND principal_id = ? AND resource_type = ? AND resource_id = ? AND rev = ?
		`, attrs, r.SpaceID, r.PrincipalID, r.ResourceType, r.ResourceID, r.Rev)
		if updErr != nil {
			return mapWriteError(updErr, storage.ErrInvalidKey)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrRevisionMismatch
		}
		r.Rev++
		return nil
	})
}

func (s *Store) RetrieveRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (*types.Record, error) {
	var r *types.Record
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT `+recordColumns+`
			FROM records
			WHERE space_id = ? AND principal_id = ? AND resource_type = ? AND resource_id = ?
		`, spaceID, principalID, resourceType, resourceID)
		scanned, err := scanRecord(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}
		r = scanned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) DiscardRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (bool, error) {
	var existed bool
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			DELETE FROM records
			WHERE space_id = ? AND principal_id = ? AND resource_type = ? AND resource_id = ?
		`, spaceID, principalID, resourceType, resourceID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		existed = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// ListRecordsByPrincipal pages records granted to a principal, resource id
// descending, resuming strictly below lastID.
func (s *Store) ListRecordsByPrincipal(ctx context.Context, spaceID, principalID, resourceType, lastID string, limit int) ([]*types.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE space_id = ? AND principal_id = ?`
	args := []any{spaceID, principalID}
	if resourceType != "" {
		query += " AND resource_type = ?"
		args = append(args, resourceType)
	}
	if lastID != "" {
		query += " AND resource_id < ?"
		args = append(args, lastID)
	}
	query += " ORDER BY resource_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// ListRecordsByResource pages records over one resource, principal id
// descending.
func (s *Store) ListRecordsByResource(ctx context.Context, spaceID, resourceType, resourceID, lastID string, limit int) ([]*types.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE space_id = ? AND resource_type = ? AND resource_id = ?`
	args := []any{spaceID, resourceType, resourceID}
	if lastID != "" {
		query += " AND principal_id < ?"
		args = append(args, lastID)
	}
	query += " ORDER BY principal_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*types.Record, error) {
	var out []*types.Record
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
