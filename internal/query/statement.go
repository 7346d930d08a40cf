package query

import (
	"context"

	"github.com/dshills/modelstore/internal/engine"
)

// Statement is a rendered SQL string and its positional parameters. Params
// are listed in the order their placeholders appear in SQL.
type Statement struct {
	SQL    string
	Params []any
}

// Raw wraps hand-written SQL. It is the escape hatch for statements the
// builders cannot express, such as recursive CTEs.
func Raw(sql string, params ...any) Statement {
	return Statement{SQL: sql, Params: params}
}

// Query runs the statement and returns its rows
func (s Statement) Query(ctx context.Context, ex engine.Executor) ([]engine.Row, error) {
	res := ex.Query(ctx, s.SQL, s.Params...)
	if !res.Success {
		return nil, res.Err
	}
	return res.Rows, nil
}

// Exec runs the statement and returns the number of affected rows
func (s Statement) Exec(ctx context.Context, ex engine.Executor) (int64, error) {
	res := ex.Execute(ctx, s.SQL, s.Params...)
	if !res.Success {
		return 0, res.Err
	}
	return res.RowsAffected, nil
}
