package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/query"
	"github.com/dshills/modelstore/internal/schema"
)

// ErrUnsupportedFormat is returned for formats other than json and csv
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format selects the export encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"

	// CompressedExt is appended to the name of snappy-framed exports
	CompressedExt = ".sz"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// TableData holds the rows of one table in column order
type TableData struct {
	Name    string
	Columns []string
	Rows    []engine.Row
}

// FileWriter is where SaveToStore puts an export
type FileWriter interface {
	WriteFile(name string, content []byte) error
}

// Exporter dumps store tables
type Exporter struct {
	db  engine.Executor
	log logrus.FieldLogger
}

// New creates an Exporter reading through db
func New(db engine.Executor, log logrus.FieldLogger) *Exporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exporter{db: db, log: log.WithField("component", "export")}
}

// Collect reads every row of the named tables, or of all schema tables
// when none are named, in insertion order
func (e *Exporter) Collect(ctx context.Context, tables ...string) ([]TableData, error) {
	if len(tables) == 0 {
		tables = schema.TableNames()
	}
	out := make([]TableData, 0, len(tables))
	for _, name := range tables {
		stmt, err := query.Select(name).OrderBy("rowid", "ASC").Build()
		if err != nil {
			return nil, err
		}
		res := e.db.Query(ctx, stmt.SQL, stmt.Params...)
		if res.Err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, res.Err)
		}
		out = append(out, TableData{Name: name, Columns: res.ColumnNames, Rows: res.Rows})
	}
	return out, nil
}

// Export collects tables and encodes them in format
func (e *Exporter) Export(ctx context.Context, format Format, tables ...string) ([]byte, error) {
	data, err := e.Collect(ctx, tables...)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return JSON(data)
	case FormatCSV:
		return CSV(data), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// SaveToStore writes an export named <name>.<format>, snappy framed with
// a .sz suffix when compress is set, and returns the file name
func (e *Exporter) SaveToStore(ctx context.Context, w FileWriter, name string, format Format, compress bool) (string, error) {
	content, err := e.Export(ctx, format)
	if err != nil {
		return "", err
	}
	file := name + "." + string(format)
	if compress {
		if content, err = Compress(content); err != nil {
			return "", err
		}
		file += CompressedExt
	}
	if err := w.WriteFile(file, content); err != nil {
		return "", fmt.Errorf("failed to save export: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"file":       file,
		"format":     format,
		"bytes":      len(content),
		"compressed": compress,
	}).Info("Saved export")
	return file, nil
}

// JSON encodes data as one key per table holding an array of row objects
func JSON(data []TableData) ([]byte, error) {
	doc := make(map[string][]engine.Row, len(data))
	for _, t := range data {
		rows := t.Rows
		if rows == nil {
			rows = []engine.Row{}
		}
		doc[t.Name] = rows
	}
	return json.MarshalIndent(doc, "", "  ")
}

// CSV writes one section per table: a "# Table: <name>" line, a header and
// the rows. Every value is quoted; NULL becomes an empty quoted field.
func CSV(data []TableData) []byte {
	var buf bytes.Buffer
	for i, t := range data {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "# Table: %s\n", t.Name)
		buf.WriteString(strings.Join(t.Columns, ","))
		buf.WriteByte('\n')
		for _, row := range t.Rows {
			for j, col := range t.Columns {
				if j > 0 {
					buf.WriteByte(',')
				}
				buf.WriteString(quote(formatValue(row[col])))
			}
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// Compress wraps content in the snappy framing format
func Compress(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(content); err != nil {
		return nil, fmt.Errorf("failed to compress export: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress export: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress
func Decompress(content []byte) ([]byte, error) {
	out, err := io.ReadAll(snappy.NewReader(bytes.NewReader(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress export: %w", err)
	}
	return out, nil
}
