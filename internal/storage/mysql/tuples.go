package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

const tupleColumns = `id, rev, space_id, strand,
	l_entity_type, l_entity_id, l_principal_id, relation,
	r_entity_type, r_entity_id, r_principal_id,
	attrs, l_hash, r_hash, rid_l, rid_r`

func scanTuple(row interface{ Scan(...any) error }) (*types.Tuple, error) {
	var t types.Tuple
	var lPrincipal, rPrincipal, ridL, ridR sql.NullString
	var attrs []byte
	if err := row.Scan(
		&t.ID, &t.Rev, &t.SpaceID, &t.Strand,
		&t.Left.Type, &t.Left.ID, &lPrincipal, &t.Relation,
		&t.Right.Type, &t.Right.ID, &rPrincipal,
		&attrs, &t.LHash, &t.RHash, &ridL, &ridR,
	); err != nil {
		return nil, err
	}
	t.Left.PrincipalID = lPrincipal.String
	t.Right.PrincipalID = rPrincipal.String
	t.RidL = ridL.String
	t.RidR = ridR.String
	decoded, err := unmarshalAttrs(attrs)
	if err != nil {
		return nil, err
	}
	t.Attrs = decoded
	return &t, nil
}

// StoreTuple upserts by tuple id. A composite-key collision from a different
// tuple surfaces ErrAlreadyExists; a principal endpoint that does not
// resolve surfaces ErrInvalidKey.
func (s *Store) StoreTuple(ctx context.Context, t *types.Tuple) error {
	t.Sanitize()
	attrs, err := marshalAttrs(t.Attrs)
	if err != nil {
		return err
	}
	lPrincipal := sql.NullString{String: t.Left.PrincipalID, Valid: t.Left.PrincipalID != ""}
	rPrincipal := sql.NullString{String: t.Right.PrincipalID, Valid: t.Right.PrincipalID != ""}
	ridL := sql.NullString{String: t.RidL, Valid: t.RidL != ""}
	ridR := sql.NullString{String: t.RidR, Valid: t.RidR != ""}

	return s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, insErr := db.ExecContext(ctx, `
			INSERT INTO tuples (space_id, id, rev, strand,
				l_entity_type, l_entity_id, l_principal_id, relation,
				r_entity_type, r_entity_id, r_principal_id,
				attrs, l_hash, r_hash, rid_l, rid_r)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.SpaceID, t.ID, t.Rev, t.Strand,
			t.Left.Type, t.Left.ID, lPrincipal, t.Relation,
			t.Right.Type, t.Right.ID, rPrincipal,
			attrs, t.LHash, t.RHash, ridL, ridR)
		if insErr == nil {
			return nil
		}
		if isDupOnKey(insErr, "uq_tuple_composite") {
			return storage.ErrAlreadyExists
		}
		if me, ok := mysqlErr(insErr); !ok || me.Number != errDupEntry {
			return mapWriteError(insErr, storage.ErrInvalidKey)
		}

		// Primary-key conflict: guarded update of the existing row.
		res, updErr := db.ExecContext(ctx, `
			UPDATE tuples
			SET rev = rev + 1, strand = ?,
				l_entity_type = ?, l_entity_id = ?, l_principal_id = ?, relation = ?,
				r_entity_type = ?, r_entity_id = ?, r_principal_id = ?,
				attrs = ?, l_hash = ?, r_hash = ?, rid_l = ?, rid_r = ?
			WHERE space_id = ? AND id = ? AND rev = ?
		`, t.Strand,
			t.Left.Type, t.Left.ID, lPrincipal, t.Relation,
			t.Right.Type, t.Right.ID, rPrincipal,
			attrs, t.LHash, t.RHash, ridL, ridR,
			t.SpaceID, t.ID, t.Rev)
		if updErr != nil {
			if isDupOnKey(updErr, "uq_tuple_composite") {
				return storage.ErrAlreadyExists
			}
			return mapWriteError(updErr, storage.ErrInvalidKey)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrRevisionMismatch
		}
		t.Rev++
		return nil
	})
}

// DiscardTuple deletes by id; discarding an absent tuple is a no-op.
func (s *Store) DiscardTuple(ctx context.Context, spaceID, tupleID string) (bool, error) {
	var existed bool
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			DELETE FROM tuples WHERE space_id = ? AND id = ?
		`, spaceID, tupleID)
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

func (s *Store) RetrieveTuple(ctx context.Context, spaceID, tupleID string) (*types.Tuple, error) {
	var t *types.Tuple
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT `+tupleColumns+`
			FROM tuples
			WHERE space_id = ? AND id = ?
		`, spaceID, tupleID)
		scanned, err := scanTuple(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}
		t = scanned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// LookupTuple matches the full composite; empty relation or strand act as
// wildcards.
func (s *Store) LookupTuple(ctx context.Context, spaceID string, left, right types.Endpoint, relation, strand string) (*types.Tuple, error) {
	left.Sanitize()
	right.Sanitize()

	query := `
		SELECT ` + tupleColumns + `
		FROM tuples
		WHERE space_id = ?
		  AND l_entity_type = ? AND l_entity_id = ?
		  AND r_entity_type = ? AND r_entity_id = ?`
	args := []any{spaceID, left.Type, left.ID, right.Type, right.ID}
	if relation != "" {
		query += " AND relation = ?"
		args = append(args, relation)
	}
	if strand != "" {
		query += " AND strand = ?"
		args = append(args, strand)
	}
	query += " LIMIT 1"

	var t *types.Tuple
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		scanned, err := scanTuple(db.QueryRowContext(ctx, query, args...))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}
		t = scanned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListLeft returns tuples fanning into the right endpoint, left hash
// descending then left entity id descending, with opt.LastID as the
// exclusive id cursor.
func (s *Store) ListLeft(ctx context.Context, spaceID string, right types.Endpoint, opt storage.ListOptions) ([]*types.Tuple, error) {
	right.Sanitize()

	query := `
		SELECT ` + tupleColumns + `
		FROM tuples
		WHERE space_id = ? AND r_entity_type = ? AND r_entity_id = ?`
	args := []any{spaceID, right.Type, right.ID}
	query, args = appendListFilters(query, args, opt, "l_entity_id", "l_principal_id")
	query += " ORDER BY l_hash DESC, l_entity_id DESC"
	if opt.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opt.Limit)
	}
	return s.queryTuples(ctx, query, args...)
}

// ListRight is the mirror image over the left endpoint.
func (s *Store) ListRight(ctx context.Context, spaceID string, left types.Endpoint, opt storage.ListOptions) ([]*types.Tuple, error) {
	left.Sanitize()

	query := `
		SELECT ` + tupleColumns + `
		FROM tuples
		WHERE space_id = ? AND l_entity_type = ? AND l_entity_id = ?`
	args := []any{spaceID, left.Type, left.ID}
	query, args = appendListFilters(query, args, opt, "r_entity_id", "r_principal_id")
	query += " ORDER BY r_hash DESC, r_entity_id DESC"
	if opt.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opt.Limit)
	}
	return s.queryTuples(ctx, query, args...)
}

func appendListFilters(query string, args []any, opt storage.ListOptions, farIDCol, farPrincipalCol string) (string, []any) {
	if opt.Relation != "" {
		query += " AND relation = ?"
		args = append(args, opt.Relation)
	}
	if opt.Strand != "" {
		query += " AND strand = ?"
		args = append(args, opt.Strand)
	}
	if opt.PrincipalsOnly {
		query += " AND " + farPrincipalCol + " IS NOT NULL"
	}
	if opt.LastID != "" {
		query += " AND " + farIDCol + " < ?"
		args = append(args, opt.LastID)
	}
	return query, args
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

func (s *Store) queryTuples(ctx context.Context, query string, args ...any) ([]*types.Tuple, error) {
	var out []*types.Tuple
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTuple(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
