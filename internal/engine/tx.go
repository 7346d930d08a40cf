package engine

import (
	"context"
	"time"
)

// Executor runs statements. Both *Engine and *Tx implement it, so code that
// builds statements does not care whether it runs inside a transaction.
type Executor interface {
	Query(ctx context.Context, query string, params ...any) *QueryResult
	Execute(ctx context.Context, query string, params ...any) *ExecResult
}

// Database is an Executor that can also run transactions. *Engine implements
// it; the schema, storage and sync layers depend on it.
type Database interface {
	Executor
	Transaction(ctx context.Context, fn func(tx *Tx) error) *ExecResult
}

// Tx executes statements inside a transaction started by Engine.Transaction.
// It is only valid for the duration of the transaction body and runs directly
// on the worker's connection, so the body must not call back into the Engine.
type Tx struct {
	conn conn
	done bool
}

// Query runs a row-returning statement inside the transaction
func (t *Tx) Query(ctx context.Context, query string, params ...any) *QueryResult {
	if t.done {
		return queryFailed(ErrTxDone, time.Now())
	}
	return runQuery(ctx, t.conn, query, params)
}

// Execute runs a mutation inside the transaction
func (t *Tx) Execute(ctx context.Context, query string, params ...any) *ExecResult {
	if t.done {
		return execFailed(ErrTxDone)
	}
	return runExec(ctx, t.conn, query, params)
}
