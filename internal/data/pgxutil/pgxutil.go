// Package pgxutil reaches the native pgx connection behind a database/sql
// pool so repositories can use batches and transaction-scoped locks.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// TxConfig describes a native pgx transaction.
type TxConfig struct {
	Opts pgx.TxOptions // zero value uses the server defaults
	Fn   func(pgx.Tx) error
}

var errNotPgx = errors.New("driver connection is not pgx stdlib")

// WithPgxTx runs cfg.Fn inside a pgx transaction on one pooled connection.
// The transaction commits only when Fn returns nil.
func WithPgxTx(ctx context.Context, db *sql.DB, cfg TxConfig) error {
	if cfg.Fn == nil {
		return errors.New("transaction func is required")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close() //nolint:errcheck // returning the conn to the pool cannot fail usefully

	return conn.Raw(func(driverConn any) error {
		std, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNotPgx
		}
		return runTx(ctx, std.Conn(), cfg)
	})
}

func runTx(ctx context.Context, conn *pgx.Conn, cfg TxConfig) (err error) {
	tx, err := conn.BeginTx(ctx, cfg.Opts)
	if err != nil {
		return fmt.Errorf("begin pgx tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback pgx tx: %w", rbErr))
		}
	}()

	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pgx tx: %w", err)
	}
	return nil
}

// TryAdvisoryXactLock takes a two-key advisory lock held until tx ends.
// It reports false without waiting when another session holds the lock.
func TryAdvisoryXactLock(ctx context.Context, tx pgx.Tx, major, minor int32) (bool, error) {
	var locked bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", major, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return locked, nil
}
