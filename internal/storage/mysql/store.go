// Package mysql implements the storage interface on a MySQL-compatible
// server via database/sql.
//
// The store holds a single connection guarded by a timed semaphore: every
// operation acquires the guard with a deadline (surfacing ErrTimeout on
// expiry), runs as an autocommit statement, and releases the guard on all
// exit paths. A broken-connection signal triggers exactly one
// reconnect-and-retry; a second failure surfaces ErrUnavailable.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/semaphore"

	"github.com/weftlabs/weft/internal/storage"
)

// MySQL server error numbers the store maps onto the error taxonomy.
const (
	errDupEntry        = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errCheckViolated   = 3819
)

// DefaultAcquireTimeout bounds how long an operation waits for the
// connection guard before failing with ErrTimeout.
const DefaultAcquireTimeout = time.Second

const reconnectMaxElapsed = 10 * time.Second

// Config holds the MySQL connection configuration.
type Config struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/weft?parseTime=true".
	DSN string
	// AcquireTimeout overrides DefaultAcquireTimeout when positive.
	AcquireTimeout time.Duration
}

// Store implements storage.Storage on MySQL.
type Store struct {
	db             *sql.DB
	dsn            string
	guard          *semaphore.Weighted
	acquireTimeout time.Duration
}

// Open connects, verifies the connection, and initializes the schema.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}

	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	db, err := openConnection(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", storage.ErrUnavailable, err)
	}

	s := &Store{
		db:             db,
		dsn:            cfg.DSN,
		guard:          semaphore.NewWeighted(1),
		acquireTimeout: timeout,
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func openConnection(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	// One connection, single-flight through the guard.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// isConnErr reports whether the error looks like a dead connection worth a
// single reconnect. Matches on the driver's transient failure strings.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, sig := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, sig) {
			return true
		}
	}
	return false
}

func (s *Store) reconnect(ctx context.Context) error {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	db, err := openConnection(s.dsn)
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = reconnectMaxElapsed
	if err := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx)); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

// withConn runs op holding the connection guard. On a connection failure it
// reconnects once and retries op once.
func (s *Store) withConn(ctx context.Context, op func(ctx context.Context, db *sql.DB) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	err := s.guard.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		return storage.ErrTimeout
	}
	defer s.guard.Release(1)

	if s.db == nil {
		return storage.ErrUnavailable
	}
	err = op(ctx, s.db)
	if err != nil && isConnErr(err) {
		if rerr := s.reconnect(ctx); rerr != nil {
			return fmt.Errorf("%w: reconnect failed: %v", storage.ErrUnavailable, rerr)
		}
		err = op(ctx, s.db)
	}
	return err
}

// mysqlErr unwraps a *mysql.MySQLError if present.
func mysqlErr(err error) (*mysql.MySQLError, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// mapWriteError translates server errors into the storage taxonomy. fkKind
// is the kind surfaced for a foreign-key violation on this statement.
func mapWriteError(err error, fkKind error) error {
	if err == nil {
		return nil
	}
	if me, ok := mysqlErr(err); ok {
		switch me.Number {
		case errDupEntry:
			return storage.ErrAlreadyExists
		case errRowIsReferenced, errNoReferencedRow:
			return fkKind
		case errCheckViolated:
			return storage.ErrInvalidData
		}
	}
	return err
}

func marshalAttrs(attrs map[string]any) (any, error) {
	if attrs == nil {
		return nil, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidData, err)
	}
	return raw, nil
}

func unmarshalAttrs(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidData, err)
	}
	return attrs, nil
}

// Statistics reports per-space row counts.
func (s *Store) Statistics(ctx context.Context, spaceID string) (*storage.Statistics, error) {
	stats := &storage.Statistics{}
	err := s.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		for _, c := range []struct {
			table string
			n     *int64
		}{
			{"principals", &stats.Principals},
			{"records", &stats.Records},
			{"tuples", &stats.Tuples},
		} {
			row := db.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM "+c.table+" WHERE space_id = ?", spaceID)
			if err := row.Scan(c.n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
