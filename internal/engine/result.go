package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// QueryResult is the structured outcome of a query. A failed query has
// Success false and Err set; it is never reported any other way.
type QueryResult struct {
	Success       bool
	Rows          []Row
	RowCount      int
	ColumnNames   []string
	ColumnTypes   []string
	ExecutionTime time.Duration
	Err           error
}

// ExecResult is the structured outcome of a mutation or transaction
type ExecResult struct {
	Success      bool
	RowsAffected int64
	Err          error
}

func queryFailed(err error, started time.Time) *QueryResult {
	return &QueryResult{
		Rows:          make([]Row, 0),
		ExecutionTime: time.Since(started),
		Err:           err,
	}
}

func execFailed(err error) *ExecResult {
	return &ExecResult{Err: err}
}

// Row is one result row keyed by column name. Accessors convert the driver's
// representation and fill defaults for NULL or missing values.
type Row map[string]any

// String returns the column as a string, "" when NULL
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// NullString returns nil for NULL, otherwise a pointer to the string value
func (r Row) NullString(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.String(col)
	return &s
}

// Int64 returns the column as an integer, 0 when NULL or not numeric
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	}
	return 0
}

// Int returns the column as an int
func (r Row) Int(col string) int {
	return int(r.Int64(col))
}

// Bool returns the column as a boolean; integers are true when non-zero
func (r Row) Bool(col string) bool {
	if v, ok := r[col].(bool); ok {
		return v
	}
	return r.Int64(col) != 0
}

// Time parses the column as a timestamp; zero time when NULL or unparseable
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC()
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case int64:
		return time.UnixMilli(v).UTC()
	}
	return time.Time{}
}

// JSON decodes a JSON text column into dst. NULL and empty text leave dst
// untouched.
func (r Row) JSON(col string, dst any) error {
	raw := r.String(col)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("column %s: %w", col, err)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// FormatTime renders t the way timestamps are stored: RFC 3339 in UTC.
// The zero time is stored as NULL.
func FormatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
