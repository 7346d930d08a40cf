package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/modelstore/internal/engine"
)

var columnAliasPattern = regexp.MustCompile(`^(?i)(.+?)\s+AS\s+([A-Za-z_][A-Za-z0-9_]*)$`)

var joinTypes = map[string]bool{
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true,
}

type join struct {
	kind  string
	table string
	alias string
	on    string
}

type order struct {
	col string
	dir string
}

// SelectBuilder builds a SELECT statement. Invalid input is recorded and
// reported by Build, so chains never need intermediate error checks.
type SelectBuilder struct {
	where[*SelectBuilder]

	table   string
	alias   string
	columns []string
	joins   []join
	groupBy []string
	having  []condition
	orderBy []order
	limit   *int
	offset  *int
}

// Select starts a SELECT against table, optionally aliased
func Select(table string, alias ...string) *SelectBuilder {
	b := &SelectBuilder{table: table}
	b.self = b
	if !validIdent(table) {
		b.fail(fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table))
	}
	if len(alias) > 0 && alias[0] != "" {
		b.alias = alias[0]
		if !validIdent(b.alias) {
			b.fail(fmt.Errorf("%w: alias %q", ErrInvalidIdentifier, b.alias))
		}
	}
	return b
}

// Columns sets the projection. Entries may be identifiers, `t.*`,
// aggregates like COUNT(*), and any of these followed by `AS name`.
// The default is `*`.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	for _, c := range cols {
		if !validProjection(c) {
			b.fail(fmt.Errorf("%w: column %q", ErrInvalidIdentifier, c))
			continue
		}
		b.columns = append(b.columns, c)
	}
	return b
}

func validProjection(c string) bool {
	expr := strings.TrimSpace(c)
	if m := columnAliasPattern.FindStringSubmatch(expr); m != nil {
		expr = strings.TrimSpace(m[1])
	}
	return validIdent(expr) || aggregatePattern.MatchString(expr)
}

// Join adds `<kind> JOIN table [alias] ON a = b`. kind is INNER, LEFT, RIGHT,
// FULL or CROSS; the ON clause must compare two column references.
func (b *SelectBuilder) Join(kind, table, on string, alias ...string) *SelectBuilder {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if !joinTypes[kind] {
		b.fail(fmt.Errorf("%w: join type %q", ErrInvalidOperator, kind))
		return b
	}
	if !validIdent(table) {
		b.fail(fmt.Errorf("%w: join table %q", ErrInvalidIdentifier, table))
		return b
	}
	j := join{kind: kind, table: table}
	if len(alias) > 0 && alias[0] != "" {
		if !validIdent(alias[0]) {
			b.fail(fmt.Errorf("%w: join alias %q", ErrInvalidIdentifier, alias[0]))
			return b
		}
		j.alias = alias[0]
	}
	if kind != "CROSS" {
		m := joinOnPattern.FindStringSubmatch(on)
		if m == nil || !validIdent(m[1]) || !validIdent(m[3]) {
			b.fail(fmt.Errorf("%w: join condition %q", ErrInvalidIdentifier, on))
			return b
		}
		j.on = fmt.Sprintf("%s %s %s", m[1], m[2], m[3])
	}
	b.joins = append(b.joins, j)
	return b
}

// LeftJoin is Join("LEFT", ...)
func (b *SelectBuilder) LeftJoin(table, on string, alias ...string) *SelectBuilder {
	return b.Join("LEFT", table, on, alias...)
}

// GroupBy appends grouping columns
func (b *SelectBuilder) GroupBy(cols ...string) *SelectBuilder {
	for _, c := range cols {
		if !validIdent(c) {
			b.fail(fmt.Errorf("%w: group by %q", ErrInvalidIdentifier, c))
			continue
		}
		b.groupBy = append(b.groupBy, c)
	}
	return b
}

// Having adds `expr op ?` to the HAVING clause, joined with AND. expr is a
// column or an aggregate such as COUNT(*).
func (b *SelectBuilder) Having(expr, op string, val any) *SelectBuilder {
	if !validIdent(expr) && !aggregatePattern.MatchString(expr) {
		b.fail(fmt.Errorf("%w: having %q", ErrInvalidIdentifier, expr))
		return b
	}
	norm, ok := normalizeOp(op)
	if !ok {
		b.fail(fmt.Errorf("%w: %q", ErrInvalidOperator, op))
		return b
	}
	b.having = append(b.having, condition{conj: "AND", sql: fmt.Sprintf("%s %s ?", expr, norm), params: []any{val}})
	return b
}

// OrderBy appends a sort key. dir is ASC or DESC; empty means ASC.
func (b *SelectBuilder) OrderBy(col, dir string) *SelectBuilder {
	if !validIdent(col) {
		b.fail(fmt.Errorf("%w: order by %q", ErrInvalidIdentifier, col))
		return b
	}
	dir = strings.ToUpper(strings.TrimSpace(dir))
	switch dir {
	case "":
		dir = "ASC"
	case "ASC", "DESC":
	default:
		b.fail(fmt.Errorf("%w: order direction %q", ErrInvalidOperator, dir))
		return b
	}
	b.orderBy = append(b.orderBy, order{col: col, dir: dir})
	return b
}

// Limit caps the number of rows
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset skips rows. Without Limit it renders `LIMIT -1 OFFSET ?`.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build renders the statement
func (b *SelectBuilder) Build() (Statement, error) {
	if b.err != nil {
		return Statement{}, b.err
	}
	cols := "*"
	if len(b.columns) > 0 {
		cols = strings.Join(b.columns, ", ")
	}

	var sb strings.Builder
	var params []any
	sb.WriteString("SELECT " + cols + " FROM " + b.from())
	b.writeJoins(&sb)

	whereSQL, whereParams := b.where.build()
	sb.WriteString(whereSQL)
	params = append(params, whereParams...)

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(b.groupBy, ", "))
	}
	for i, h := range b.having {
		if i == 0 {
			sb.WriteString(" HAVING ")
		} else {
			sb.WriteString(" " + h.conj + " ")
		}
		sb.WriteString(h.sql)
		params = append(params, h.params...)
	}
	if len(b.orderBy) > 0 {
		keys := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			keys[i] = o.col + " " + o.dir
		}
		sb.WriteString(" ORDER BY " + strings.Join(keys, ", "))
	}
	switch {
	case b.limit != nil:
		sb.WriteString(" LIMIT ?")
		params = append(params, *b.limit)
		if b.offset != nil {
			sb.WriteString(" OFFSET ?")
			params = append(params, *b.offset)
		}
	case b.offset != nil:
		sb.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, *b.offset)
	}

	return Statement{SQL: sb.String(), Params: params}, nil
}

func (b *SelectBuilder) from() string {
	if b.alias != "" {
		return b.table + " " + b.alias
	}
	return b.table
}

func (b *SelectBuilder) writeJoins(sb *strings.Builder) {
	for _, j := range b.joins {
		sb.WriteString(" " + j.kind + " JOIN " + j.table)
		if j.alias != "" {
			sb.WriteString(" " + j.alias)
		}
		if j.on != "" {
			sb.WriteString(" ON " + j.on)
		}
	}
}

// filter renders FROM, joins and WHERE only, for Count and Exists
func (b *SelectBuilder) filter() (string, []any) {
	var sb strings.Builder
	sb.WriteString(b.from())
	b.writeJoins(&sb)
	whereSQL, params := b.where.build()
	sb.WriteString(whereSQL)
	return sb.String(), params
}

// All runs the query and returns every row
func (b *SelectBuilder) All(ctx context.Context, ex engine.Executor) ([]engine.Row, error) {
	stmt, err := b.Build()
	if err != nil {
		return nil, err
	}
	return stmt.Query(ctx, ex)
}

// First runs the query with LIMIT 1 and returns the row, or ErrNoRows
func (b *SelectBuilder) First(ctx context.Context, ex engine.Executor) (engine.Row, error) {
	saved := b.limit
	b.Limit(1)
	stmt, err := b.Build()
	b.limit = saved
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(ctx, ex)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// Count returns the number of rows matching the joins and WHERE clause.
// Grouping, ordering and paging are ignored.
func (b *SelectBuilder) Count(ctx context.Context, ex engine.Executor) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	from, params := b.filter()
	rows, err := Raw("SELECT COUNT(*) AS count FROM "+from, params...).Query(ctx, ex)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Int64("count"), nil
}

// Exists reports whether any row matches
func (b *SelectBuilder) Exists(ctx context.Context, ex engine.Executor) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	from, params := b.filter()
	rows, err := Raw("SELECT EXISTS(SELECT 1 FROM "+from+") AS found", params...).Query(ctx, ex)
	if err != nil {
		return false, err
	}
	return len(rows) > 0 && rows[0].Bool("found"), nil
}
