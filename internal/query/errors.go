package query

import "errors"

var (
	// ErrInvalidIdentifier is returned by Build for a table or column name
	// that is not a plain identifier
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidOperator is returned by Build for a comparison operator
	// outside the supported set
	ErrInvalidOperator = errors.New("invalid operator")
	// ErrEmptyStatement is returned for an INSERT without rows or an UPDATE
	// without assignments
	ErrEmptyStatement = errors.New("empty statement")
	// ErrColumnMismatch is returned when an inserted row does not match the
	// declared columns
	ErrColumnMismatch = errors.New("column mismatch")
	// ErrNoRows is returned by First when nothing matches
	ErrNoRows = errors.New("no rows")
)
