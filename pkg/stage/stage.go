package stage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/caravan/pkg/types"
)

// Ext is the staging file extension. One file per table, column-major,
// gzip-compressed.
const Ext = ".colz"

// Graph staging file basenames
const (
	GraphNodesFile = "sp_nodes" + Ext
	GraphEdgesFile = "sp_relationships" + Ext
)

// Column holds one column's schema and its cell values. A nil cell is
// NULL. Cell values are one of: int64, float64, bool, string,
// time.Time, []byte.
type Column struct {
	Name     string
	Type     types.LogicalType
	Nullable bool
	Values   []any
}

// Table is an in-memory columnar table, the unit moved through the
// staging directory.
type Table struct {
	Columns []Column
	rows    int
}

// NewTable builds an empty table with the given column schemas
func NewTable(cols []types.ColumnSchema) *Table {
	t := &Table{Columns: make([]Column, len(cols))}
	for i, c := range cols {
		t.Columns[i] = Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	return t
}

// Rows returns the row count
func (t *Table) Rows() int { return t.rows }

// ColumnIndex returns the index of the named column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists
func (t *Table) HasColumn(name string) bool { return t.ColumnIndex(name) >= 0 }

// ColumnNames returns the column names in declaration order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i := range t.Columns {
		names[i] = t.Columns[i].Name
	}
	return names
}

// AppendRow appends one row. Values must match the column count; each
// value is normalized to the canonical cell types.
func (t *Table) AppendRow(values []any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	for i, v := range values {
		norm, err := Normalize(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", t.Columns[i].Name, err)
		}
		t.Columns[i].Values = append(t.Columns[i].Values, norm)
	}
	t.rows++
	return nil
}

// Row materializes row i in column order
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.Columns))
	for c := range t.Columns {
		row[c] = t.Columns[c].Values[i]
	}
	return row
}

// Value returns the cell at (column name, row). The second result is
// false when the column does not exist.
func (t *Table) Value(column string, row int) (any, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, false
	}
	return t.Columns[idx].Values[row], true
}

// Schemas returns the table's column schemas
func (t *Table) Schemas() []types.ColumnSchema {
	out := make([]types.ColumnSchema, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = types.ColumnSchema{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	return out
}

// Normalize coerces a Go value into the canonical cell domain
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int64, float64, bool, string, time.Time, []byte:
		return x, nil
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

// Stringify renders a cell the way the consistency map and the hash
// strategy key on it. Must be stable across runs.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// FileName returns the staging basename for a table: store_table.colz
func FileName(store, table string) string {
	return store + "_" + table + Ext
}

// SplitFileName recovers (store, table) from a staging basename. The
// store id never contains an underscore; the table name may.
func SplitFileName(name string) (store, table string, ok bool) {
	base := strings.TrimSuffix(name, Ext)
	if base == name {
		return "", "", false
	}
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// List returns the staging files in dir, sorted by name for
// deterministic processing order.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// WriteJSONFile persists a report document, creating the directory as
// needed
func WriteJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
