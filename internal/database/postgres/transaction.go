package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// txKey is the context key under which an open transaction travels. A typed
// key keeps it invisible to other packages; repositories share the
// transaction by passing the same context.
type txKey struct{}

// WithTransaction begins a transaction, stores it in the context, runs fn,
// and commits. Any error from fn rolls the transaction back and is returned
// unchanged so sentinel checks still work at the service boundary.
func WithTransaction(ctx context.Context, client *Client, fn func(ctx context.Context) error) error {
	tx, err := client.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Executor returns the transaction stored in the context when present, else
// the shared connection pool. Repositories route every statement through
// this so the same code runs inside and outside a transaction.
func Executor(ctx context.Context, client *Client) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return client.DB()
}

// TxFromContext reports whether the context carries an open transaction.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}
