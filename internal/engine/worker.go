package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// conn is the subset of *sql.Conn the worker uses
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type requestKind int

const (
	kindQuery requestKind = iota
	kindExec
	kindTx
)

// request is one message to the worker. reply is buffered so the worker
// never blocks on a caller that stopped listening.
type request struct {
	ctx    context.Context
	kind   requestKind
	sql    string
	params []any
	fn     func(*Tx) error
	reply  chan response
}

type response struct {
	query *QueryResult
	exec  *ExecResult
}

// worker owns the single connection. Every statement runs on its goroutine,
// in the order requests arrive.
type worker struct {
	conn     conn
	requests chan request
	done     chan struct{}
	log      logrus.FieldLogger
}

func newWorker(c conn, log logrus.FieldLogger) *worker {
	w := &worker{
		conn:     c,
		requests: make(chan request),
		done:     make(chan struct{}),
		log:      log,
	}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for req := range w.requests {
		req.reply <- w.handle(req)
	}
}

// submit enqueues req and waits for the reply. The context bounds only the
// wait to enqueue; a statement already handed to the worker runs to completion.
func (w *worker) submit(ctx context.Context, req request) (response, error) {
	req.ctx = context.WithoutCancel(ctx)
	req.reply = make(chan response, 1)
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
	return <-req.reply, nil
}

func (w *worker) handle(req request) response {
	switch req.kind {
	case kindQuery:
		return response{query: runQuery(req.ctx, w.conn, req.sql, req.params)}
	case kindExec:
		return response{exec: runExec(req.ctx, w.conn, req.sql, req.params)}
	case kindTx:
		return response{exec: w.transact(req.ctx, req.fn)}
	}
	return response{exec: execFailed(fmt.Errorf("unknown request kind %d", req.kind))}
}

// transact runs fn between BEGIN and COMMIT. Any failure rolls back; a
// failing ROLLBACK is logged and discarded so the caller sees the original
// error.
func (w *worker) transact(ctx context.Context, fn func(*Tx) error) *ExecResult {
	if _, err := w.conn.ExecContext(ctx, "BEGIN"); err != nil {
		return execFailed(&TransactionError{Err: fmt.Errorf("begin: %w", err)})
	}

	tx := &Tx{conn: w.conn}
	err := callBody(fn, tx)
	tx.done = true

	if err == nil {
		if _, err = w.conn.ExecContext(ctx, "COMMIT"); err == nil {
			return &ExecResult{Success: true}
		}
		err = fmt.Errorf("commit: %w", err)
	}

	if _, rbErr := w.conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
		w.log.WithError(rbErr).Debug("rollback failed; reporting original error")
	}
	return execFailed(&TransactionError{Err: err})
}

func callBody(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction body panicked: %v", r)
		}
	}()
	return fn(tx)
}

// runQuery executes a statement that returns rows. Parameterised statements
// go through a prepared statement; plain ones run directly.
func runQuery(ctx context.Context, c conn, query string, params []any) *QueryResult {
	started := time.Now()

	var (
		rows *sql.Rows
		err  error
	)
	if len(params) > 0 {
		stmt, perr := c.PrepareContext(ctx, query)
		if perr != nil {
			return queryFailed(fmt.Errorf("prepare: %w", perr), started)
		}
		defer func() { _ = stmt.Close() }()
		rows, err = stmt.QueryContext(ctx, params...)
	} else {
		rows, err = c.QueryContext(ctx, query)
	}
	if err != nil {
		return queryFailed(err, started)
	}
	defer func() { _ = rows.Close() }()

	result, err := scanRows(rows)
	if err != nil {
		return queryFailed(err, started)
	}
	result.ExecutionTime = time.Since(started)
	return result
}

func runExec(ctx context.Context, c conn, query string, params []any) *ExecResult {
	res, err := c.ExecContext(ctx, query, params...)
	if err != nil {
		return execFailed(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &ExecResult{Success: true, RowsAffected: affected}
}

func scanRows(rows *sql.Rows) (*QueryResult, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	typeNames := make([]string, len(colTypes))
	for i, ct := range colTypes {
		typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	result := &QueryResult{
		Success:     true,
		Rows:        make([]Row, 0),
		ColumnNames: names,
		ColumnTypes: typeNames,
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = normalize(values[i], typeNames[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// normalize copies driver-owned byte slices and turns text returned as
// bytes into strings
func normalize(v any, typeName string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if typeName == "BLOB" {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return string(b)
}
