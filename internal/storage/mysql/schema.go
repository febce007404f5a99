package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Schema notes:
//   - Every key is scoped by space_id; primary keys lead with it.
//   - attrs columns carry a CHECK that the value is a JSON object, so a bare
//     scalar fails the insert with ErrInvalidData even if a caller bypasses
//     the RPC-level validation.
//   - Principal endpoints on tuples are real foreign keys; MySQL skips the
//     constraint when the column is NULL, which is exactly the
//     entity-endpoint case.
//   - l_hash/r_hash are descending-index ordering keys derived from the
//     endpoint (type, id); see types.EntityHash.
const schema = `
CREATE TABLE IF NOT EXISTS weft_meta (
	meta_key   VARCHAR(64) NOT NULL PRIMARY KEY,
	meta_value VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS principals (
	space_id  VARCHAR(128) NOT NULL,
	id        VARCHAR(128) NOT NULL,
	rev       BIGINT NOT NULL DEFAULT 0,
	parent_id VARCHAR(128) NULL,
	segment   VARCHAR(255) NULL,
	attrs     JSON NULL,
	PRIMARY KEY (space_id, id),
	KEY idx_principals_parent (space_id, parent_id),
	CONSTRAINT fk_principal_parent FOREIGN KEY (space_id, parent_id)
		REFERENCES principals (space_id, id),
	CONSTRAINT chk_principal_attrs CHECK (attrs IS NULL OR JSON_TYPE(attrs) = 'OBJECT'),
	CONSTRAINT chk_principal_segment CHECK (segment IS NULL OR CHAR_LENGTH(segment) > 0)
);

CREATE TABLE IF NOT EXISTS records (
	space_id      VARCHAR(128) NOT NULL,
	principal_id  VARCHAR(128) NOT NULL,
	resource_type VARCHAR(128) NOT NULL,
	resource_id   VARCHAR(128) NOT NULL,
	rev           BIGINT NOT NULL DEFAULT 0,
	attrs         JSON NULL,
	PRIMARY KEY (space_id, principal_id, resource_type, resource_id),
	KEY idx_records_resource (space_id, resource_type, resource_id),
	CONSTRAINT fk_record_principal FOREIGN KEY (space_id, principal_id)
		REFERENCES principals (space_id, id),
	CONSTRAINT chk_record_attrs CHECK (attrs IS NULL OR JSON_TYPE(attrs) = 'OBJECT')
);

CREATE TABLE IF NOT EXISTS tuples (
	space_id       VARCHAR(128) NOT NULL,
	id             VARCHAR(128) NOT NULL,
	rev            BIGINT NOT NULL DEFAULT 0,
	strand         VARCHAR(128) NOT NULL DEFAULT '',
	l_entity_type  VARCHAR(128) NOT NULL,
	l_entity_id    VARCHAR(128) NOT NULL,
	l_principal_id VARCHAR(128) NULL,
	relation       VARCHAR(128) NOT NULL,
	r_entity_type  VARCHAR(128) NOT NULL,
	r_entity_id    VARCHAR(128) NOT NULL,
	r_principal_id VARCHAR(128) NULL,
	attrs          JSON NULL,
	l_hash         BIGINT UNSIGNED NOT NULL,
	r_hash         BIGINT UNSIGNED NOT NULL,
	rid_l          VARCHAR(128) NULL,
	rid_r          VARCHAR(128) NULL,
	PRIMARY KEY (space_id, id),
	UNIQUE KEY uq_tuple_composite (space_id, strand, l_entity_type, l_entity_id, relation, r_entity_type, r_entity_id),
	KEY idx_tuples_l_hash (space_id, l_hash DESC, l_entity_id DESC),
	KEY idx_tuples_r_hash (space_id, r_hash DESC, r_entity_id DESC),
	CONSTRAINT fk_tuple_l_principal FOREIGN KEY (space_id, l_principal_id)
		REFERENCES principals (space_id, id),
	CONSTRAINT fk_tuple_r_principal FOREIGN KEY (space_id, r_principal_id)
		REFERENCES principals (space_id, id),
	CONSTRAINT chk_tuple_attrs CHECK (attrs IS NULL OR JSON_TYPE(attrs) = 'OBJECT')
);
`

const currentSchemaVersion = "1"

// initSchema creates all tables if they don't exist. MySQL doesn't accept
// multiple statements in one Exec, so the script is split first.
func (s *Store) initSchema(ctx context.Context) error {
	return s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		// Fast path: skip the DDL when the schema is already current.
		var version string
		err := db.QueryRowContext(ctx,
			"SELECT meta_value FROM weft_meta WHERE meta_key = 'schema_version'").Scan(&version)
		if err == nil && version >= currentSchemaVersion {
			return nil
		}

		for _, stmt := range splitStatements(schema) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}

		_, err = db.ExecContext(ctx,
			"INSERT INTO weft_meta (meta_key, meta_value) VALUES ('schema_version', ?) "+
				"ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)",
			currentSchemaVersion)
		return err
	})
}

// splitStatements splits a SQL script on semicolons, skipping blanks.
// Statement bodies here contain no literal semicolons, so a simple split is
// enough.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
