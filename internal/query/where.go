package query

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	identPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|\*))?$`)
	aggregatePattern = regexp.MustCompile(`^(?i:COUNT|SUM|AVG|MIN|MAX)\((\*|[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?)\)$`)
	joinOnPattern    = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*(=|!=|<>|<|<=|>|>=)\s*([A-Za-z_][A-Za-z0-9_.]*)\s*$`)
)

var comparisonOps = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "NOT LIKE": true, "GLOB": true,
}

func validIdent(s string) bool {
	return s == "*" || identPattern.MatchString(s)
}

func normalizeOp(op string) (string, bool) {
	op = strings.ToUpper(strings.Join(strings.Fields(op), " "))
	return op, comparisonOps[op]
}

type condition struct {
	conj   string
	sql    string
	params []any
}

// where is the WHERE vocabulary shared by the select, update and delete
// builders. Methods return the owning builder so calls chain.
type where[T any] struct {
	self  T
	conds []condition
	err   error
}

func (w *where[T]) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *where[T]) add(conj, sql string, params ...any) T {
	w.conds = append(w.conds, condition{conj: conj, sql: sql, params: params})
	return w.self
}

func (w *where[T]) compare(conj, col, op string, val any) T {
	if !validIdent(col) {
		w.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, col))
		return w.self
	}
	norm, ok := normalizeOp(op)
	if !ok {
		w.fail(fmt.Errorf("%w: %q", ErrInvalidOperator, op))
		return w.self
	}
	return w.add(conj, fmt.Sprintf("%s %s ?", col, norm), val)
}

// Where adds `col op ?` joined with AND
func (w *where[T]) Where(col, op string, val any) T {
	return w.compare("AND", col, op, val)
}

// AndWhere is Where, spelled out
func (w *where[T]) AndWhere(col, op string, val any) T {
	return w.compare("AND", col, op, val)
}

// OrWhere adds `col op ?` joined with OR
func (w *where[T]) OrWhere(col, op string, val any) T {
	return w.compare("OR", col, op, val)
}

// WhereIn adds `col IN (?, ...)`. An empty list matches nothing.
func (w *where[T]) WhereIn(col string, values ...any) T {
	return w.in(col, "IN", "0 = 1", values)
}

// WhereNotIn adds `col NOT IN (?, ...)`. An empty list matches everything.
func (w *where[T]) WhereNotIn(col string, values ...any) T {
	return w.in(col, "NOT IN", "1 = 1", values)
}

func (w *where[T]) in(col, op, empty string, values []any) T {
	if !validIdent(col) {
		w.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, col))
		return w.self
	}
	if len(values) == 0 {
		return w.add("AND", empty)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return w.add("AND", fmt.Sprintf("%s %s (%s)", col, op, placeholders), values...)
}

// WhereNull adds `col IS NULL`
func (w *where[T]) WhereNull(col string) T {
	return w.is(col, "IS NULL")
}

// WhereNotNull adds `col IS NOT NULL`
func (w *where[T]) WhereNotNull(col string) T {
	return w.is(col, "IS NOT NULL")
}

func (w *where[T]) is(col, test string) T {
	if !validIdent(col) {
		w.fail(fmt.Errorf("%w: %q", ErrInvalidIdentifier, col))
		return w.self
	}
	return w.add("AND", col+" "+test)
}

// WhereLike adds `col LIKE ?`
func (w *where[T]) WhereLike(col, pattern string) T {
	return w.compare("AND", col, "LIKE", pattern)
}

// build renders the WHERE clause, including its leading space
func (w *where[T]) build() (string, []any) {
	if len(w.conds) == 0 {
		return "", nil
	}
	var sb strings.Builder
	params := make([]any, 0, len(w.conds))
	sb.WriteString(" WHERE ")
	for i, c := range w.conds {
		if i > 0 {
			sb.WriteString(" " + c.conj + " ")
		}
		sb.WriteString(c.sql)
		params = append(params, c.params...)
	}
	return sb.String(), params
}

// Values converts a typed slice for WhereIn/WhereNotIn
func Values[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
