// Package dbtx defines the narrow database handle interface every store in
// lotsync depends on, so stores work unmodified whether they are handed a
// *pgxpool.Pool, a pgxpool.Tx, or (in tests) a fake.
package dbtx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx. Stores take this instead of
// a concrete pool type so the same store code runs inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is satisfied by *pgxpool.Pool. Separated from DBTX so code that
// only needs to run a query doesn't have to depend on transaction lifecycle.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction on pool, committing on success and
// rolling back if fn returns an error or panics. This is the only place a
// transaction boundary is opened — callers never hold a DBTX across a
// suspension point that does I/O outside the database (adapter calls,
// Redis round trips).
func WithTx(ctx context.Context, pool Beginner, fn func(tx pgx.Tx) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}
