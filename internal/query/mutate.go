package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dshills/modelstore/internal/engine"
)

// InsertBuilder builds a multi-row INSERT
type InsertBuilder struct {
	table    string
	columns  []string
	rows     [][]any
	conflict string
	err      error
}

// Insert starts an INSERT into table
func Insert(table string) *InsertBuilder {
	b := &InsertBuilder{table: table}
	if !validIdent(table) {
		b.fail(fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table))
	}
	return b
}

func (b *InsertBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// OrReplace renders INSERT OR REPLACE, which replaces any row that
// conflicts on a unique key
func (b *InsertBuilder) OrReplace() *InsertBuilder {
	b.conflict = "REPLACE"
	return b
}

// OrIgnore renders INSERT OR IGNORE, which skips rows that conflict
func (b *InsertBuilder) OrIgnore() *InsertBuilder {
	b.conflict = "IGNORE"
	return b
}

// Columns declares the column list. It must precede AddRow.
func (b *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	for _, c := range cols {
		if !validIdent(c) || strings.ContainsAny(c, ".*") {
			b.fail(fmt.Errorf("%w: column %q", ErrInvalidIdentifier, c))
			return b
		}
	}
	b.columns = append(b.columns[:0], cols...)
	return b
}

// AddRow appends one row of values in column order
func (b *InsertBuilder) AddRow(values ...any) *InsertBuilder {
	if len(values) != len(b.columns) {
		b.fail(fmt.Errorf("%w: %d values for %d columns", ErrColumnMismatch, len(values), len(b.columns)))
		return b
	}
	b.rows = append(b.rows, values)
	return b
}

// AddObject appends a row from a column-to-value map. The first object fixes
// the column list in sorted key order when Columns was not called; later
// objects must carry exactly those keys.
func (b *InsertBuilder) AddObject(obj map[string]any) *InsertBuilder {
	if len(b.columns) == 0 {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.Columns(keys...)
	}
	if len(obj) != len(b.columns) {
		b.fail(fmt.Errorf("%w: object has %d keys, expected %d", ErrColumnMismatch, len(obj), len(b.columns)))
		return b
	}
	row := make([]any, len(b.columns))
	for i, c := range b.columns {
		v, ok := obj[c]
		if !ok {
			b.fail(fmt.Errorf("%w: object missing %q", ErrColumnMismatch, c))
			return b
		}
		row[i] = v
	}
	b.rows = append(b.rows, row)
	return b
}

// Build renders the statement with one placeholder group per row
func (b *InsertBuilder) Build() (Statement, error) {
	if b.err != nil {
		return Statement{}, b.err
	}
	if len(b.columns) == 0 || len(b.rows) == 0 {
		return Statement{}, fmt.Errorf("%w: insert into %s has no rows", ErrEmptyStatement, b.table)
	}

	var sb strings.Builder
	sb.WriteString("INSERT ")
	if b.conflict != "" {
		sb.WriteString("OR " + b.conflict + " ")
	}
	sb.WriteString("INTO " + b.table + " (" + strings.Join(b.columns, ", ") + ") VALUES ")

	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"
	params := make([]any, 0, len(b.columns)*len(b.rows))
	for i, row := range b.rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(group)
		params = append(params, row...)
	}
	return Statement{SQL: sb.String(), Params: params}, nil
}

// Exec builds and runs the statement
func (b *InsertBuilder) Exec(ctx context.Context, ex engine.Executor) (int64, error) {
	stmt, err := b.Build()
	if err != nil {
		return 0, err
	}
	return stmt.Exec(ctx, ex)
}

type assignment struct {
	col string
	val any
}

// UpdateBuilder builds an UPDATE
type UpdateBuilder struct {
	where[*UpdateBuilder]

	table string
	sets  []assignment
}

// Update starts an UPDATE of table
func Update(table string) *UpdateBuilder {
	b := &UpdateBuilder{table: table}
	b.self = b
	if !validIdent(table) {
		b.fail(fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table))
	}
	return b
}

// Set assigns one column
func (b *UpdateBuilder) Set(col string, val any) *UpdateBuilder {
	if !validIdent(col) || strings.ContainsAny(col, ".*") {
		b.fail(fmt.Errorf("%w: column %q", ErrInvalidIdentifier, col))
		return b
	}
	b.sets = append(b.sets, assignment{col: col, val: val})
	return b
}

// SetAll assigns every entry of values, in sorted key order
func (b *UpdateBuilder) SetAll(values map[string]any) *UpdateBuilder {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.Set(k, values[k])
	}
	return b
}

// Build renders the statement. SET parameters precede WHERE parameters.
func (b *UpdateBuilder) Build() (Statement, error) {
	if b.err != nil {
		return Statement{}, b.err
	}
	if len(b.sets) == 0 {
		return Statement{}, fmt.Errorf("%w: update of %s sets nothing", ErrEmptyStatement, b.table)
	}
	parts := make([]string, len(b.sets))
	params := make([]any, 0, len(b.sets))
	for i, s := range b.sets {
		parts[i] = s.col + " = ?"
		params = append(params, s.val)
	}
	whereSQL, whereParams := b.where.build()
	return Statement{
		SQL:    "UPDATE " + b.table + " SET " + strings.Join(parts, ", ") + whereSQL,
		Params: append(params, whereParams...),
	}, nil
}

// Exec builds and runs the statement
func (b *UpdateBuilder) Exec(ctx context.Context, ex engine.Executor) (int64, error) {
	stmt, err := b.Build()
	if err != nil {
		return 0, err
	}
	return stmt.Exec(ctx, ex)
}

// DeleteBuilder builds a DELETE
type DeleteBuilder struct {
	where[*DeleteBuilder]

	table string
}

// Delete starts a DELETE from table
func Delete(table string) *DeleteBuilder {
	b := &DeleteBuilder{table: table}
	b.self = b
	if !validIdent(table) {
		b.fail(fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table))
	}
	return b
}

// Build renders the statement
func (b *DeleteBuilder) Build() (Statement, error) {
	if b.err != nil {
		return Statement{}, b.err
	}
	whereSQL, params := b.where.build()
	return Statement{SQL: "DELETE FROM " + b.table + whereSQL, Params: params}, nil
}

// Exec builds and runs the statement
func (b *DeleteBuilder) Exec(ctx context.Context, ex engine.Executor) (int64, error) {
	stmt, err := b.Build()
	if err != nil {
		return 0, err
	}
	return stmt.Exec(ctx, ex)
}
