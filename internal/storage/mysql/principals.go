package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

// StorePrincipal follows the insert-then-guarded-update upsert: the insert
// carries the caller revision, the conflict path updates only when the
// stored revision matches, and an empty update means a revision mismatch.
func (s *Store) StorePrincipal(ctx context.Context, p *types.Principal) error {
	attrs, err := marshalAttrs(p.Attrs)
	if err != nil {
		return err
	}
	parentID := sql.NullString{String: p.ParentID, Valid: p.ParentID != ""}
	segment := sql.NullString{String: p.Segment, Valid: p.Segment != ""}

	return s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, insErr := db.ExecContext(ctx, `
			INSERT INTO principals (space_id, id, rev, parent_id, segment, attrs)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.SpaceID, p.ID, p.Rev, parentID, segment, attrs)
		if insErr == nil {
			return nil
		}
		if me, ok := mysqlErr(insErr); !ok || me.Number != errDupEntry {
			return mapWriteError(insErr, storage.ErrInvalidParentID)
		}

		res, updErr := db.ExecContext(ctx, `
			UPDATE principals
			SET rev = rev + 1, parent_id = ?, segment = ?, attrs = ?
			WHERE space_id = ? AND id = ? AND rev = ?
		`, parentID, segment, attrs, p.SpaceID, p.ID, p.Rev)
		if updErr != nil {
			return mapWriteError(updErr, storage.ErrInvalidParentID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrRevisionMismatch
		}
		p.Rev++
		return nil
	})
}

func (s *Store) RetrievePrincipal(ctx context.Context, spaceID, principalID string) (*types.Principal, error) {
	var p *types.Principal
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, space_id, rev, parent_id, segment, attrs
			FROM principals
			WHERE space_id = ? AND id = ?
		`, spaceID, principalID)
		var scanned types.Principal
		var parentID, segment sql.NullString
		var attrs []byte
		if err := row.Scan(&scanned.ID, &scanned.SpaceID, &scanned.Rev, &parentID, &segment, &attrs); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}
		scanned.ParentID = parentID.String
		scanned.Segment = segment.String
		decoded, err := unmarshalAttrs(attrs)
		if err != nil {
			return err
		}
		scanned.Attrs = decoded
		p = &scanned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DiscardPrincipal deletes by id; a foreign-key refusal from any referencing
// record, tuple endpoint, or child principal surfaces as ErrInvalidKey.
func (s *Store) DiscardPrincipal(ctx context.Context, spaceID, principalID string) (bool, error) {
	var existed bool
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			DELETE FROM principals WHERE space_id = ? AND id = ?
		`, spaceID, principalID)
		if err != nil {
			return mapWriteError(err, storage.ErrInvalidKey)
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

// isDupOnKey reports whether err is a duplicate-entry violation on the named
// key. The server identifies the key in the message text ("for key '...'"),
// which is the only way to tell the composite constraint apart from the
// primary key.
func isDupOnKey(err error, key string) bool {
	me, ok := mysqlErr(err)
	if !ok || me.Number != errDupEntry {
		return false
	}
	return strings.Contains(me.Message, key)
}
