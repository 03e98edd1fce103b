// Package database provides the Postgres storage implementations of the
// Eigen Registry, trade log, payment store, and API-key store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/jmoiron/sqlx"
)

// Open connects to Postgres at dsn and verifies it with a ping.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// BaseStore provides the transaction-aware query helpers every
// table-specific store embeds.
type BaseStore struct {
	db *sqlx.DB
}

// NewBaseStore wraps db for embedding by service-specific stores.
func NewBaseStore(db *sqlx.DB) BaseStore {
	return BaseStore{db: db}
}

type txKey struct{}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier returns the active transaction if one is attached to ctx,
// otherwise the base connection pool.
func (s BaseStore) Querier(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// WithTx runs fn inside a read-committed transaction, committing on success
// and rolling back on error or panic. Used by the Eigen Registry's
// WithLock to combine the per-eigen advisory lock with the multi-step
// reserve/execute/commit mutation in one atomic unit.
func (s BaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(txCtx)
	return err
}
