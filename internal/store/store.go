// Package store is the Persistence Facade: it owns the connection pool,
// schema migrations, and the primitive operations (exec, get_one, select,
// transactions) every other layer builds on. It never knows about
// devices or sensors as domain concepts — internal/lifecycle and
// internal/handler translate those into the Table/Statement shapes this
// package understands.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/apperr"
)

// acquireTimeout bounds how long Open waits for the pool's first
// successful ping, per spec.md §5 "Pool acquisition has a 5-second
// timeout".
const acquireTimeout = 5 * time.Second

// Store wraps a *sql.DB opened against the pgx stdlib driver, adding the
// migration bookkeeping and transaction helper the rest of the host uses
// instead of touching database/sql directly.
type Store struct {
	db     *sql.DB
	once   sync.Once
	logger *zap.Logger
}

// Open connects to dsn (a postgres:// URL) and verifies the connection
// with a bounded, retried ping: transient startup races (database
// container not yet accepting connections) are retried with backoff, at
// most five attempts in all, each ping bounded by acquireTimeout.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, fmt.Sprintf("open store %q", dsn), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	defer cancel()

	pingErr := retry.Retry(func(attempt uint) error {
		return db.PingContext(ctx)
	}, strategy.Limit(5), strategy.Backoff(func(attempt uint) time.Duration {
		return time.Duration(attempt+1) * 200 * time.Millisecond
	}))
	if pingErr != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.Timeout, fmt.Sprintf("ping store %q", dsn), pingErr)
	}

	return &Store{db: db, logger: logger}, nil
}

// DB returns the underlying *sql.DB for callers (query.Builder output)
// that need to run an already-built statement directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx runs fn inside a transaction, committing on a nil return and rolling
// back otherwise. Used by the Lifecycle Controller to make configure_device's
// table-creation + binding-insert + state-transition sequence atomic
// (spec.md §4.D); the driver call itself runs before the transaction opens.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.IO, "begin tx", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("rollback failed: %v (original: %v)", rbErr, err), err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.IO, "commit tx", err)
	}
	return nil
}

// Exec runs a statement with no expected result rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.IO, "exec", err)
	}
	return nil
}

// GetOne runs query and hands the single resulting row to scan.
// Returns apperr.NotFound if no row matched.
func (s *Store) GetOne(ctx context.Context, query string, args []any, scan func(*sql.Row) error) error {
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := scan(row); err != nil {
		if err == sql.ErrNoRows {
			return apperr.New(apperr.NotFound, "no matching row")
		}
		return apperr.Wrap(apperr.IO, "scan row", err)
	}
	return nil
}

// Select runs query and invokes scan once per returned row until rows are
// exhausted or scan returns an error.
func (s *Store) Select(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.IO, "query", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return apperr.Wrap(apperr.IO, "scan row", err)
		}
	}
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.IO, "row iteration", err)
	}
	return nil
}

// Migrate creates the core schema: device, device_sensor, monitor_conf,
// and the init_state enum, all idempotently. Sensor tables themselves are
// created from Table.DDL inside the Lifecycle Controller's configure
// transaction as drivers are configured.
func (s *Store) Migrate(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		err = s.migrate(ctx)
	})
	return err
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`DO $$ BEGIN
			CREATE TYPE device_init_state AS ENUM ('DEVICE', 'SENSORS');
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
		`CREATE TABLE IF NOT EXISTS device (
			id           integer PRIMARY KEY,
			name         text NOT NULL,
			display_name text NOT NULL,
			module_dir   text NOT NULL,
			data_dir     text NOT NULL,
			init_state   device_init_state NOT NULL DEFAULT 'DEVICE'
		)`,
		`CREATE TABLE IF NOT EXISTS device_sensor (
			binding_id        text NOT NULL UNIQUE,
			device_id         integer NOT NULL REFERENCES device(id),
			sensor_name       text NOT NULL,
			sensor_table_name text NOT NULL,
			PRIMARY KEY (device_id, sensor_name)
		)`,
		`CREATE TABLE IF NOT EXISTS monitor_conf (
			id        serial PRIMARY KEY,
			device_id integer NOT NULL REFERENCES device(id),
			sensor    text NOT NULL,
			typ       text NOT NULL,
			config    jsonb NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.IO, "migrate", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("schema migrated")
	}
	return nil
}
