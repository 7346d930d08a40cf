// Package query builds parameterised SQL for the engine.
//
// Builders validate table and column names against a plain identifier
// pattern and comparison operators against a fixed set. Values never appear
// in the rendered SQL: every value becomes a `?` placeholder and is returned
// in Statement.Params in placeholder order.
//
//	stmt, err := query.Select("tables", "t").
//		Where("t.workspace_id", "=", ws).
//		WhereIn("t.data_level", query.Values(levels)...).
//		OrderBy("t.name", "ASC").
//		Build()
//
// Errors from individual calls are held until Build (or one of the
// executing helpers), so a chain reads top to bottom.
package query
