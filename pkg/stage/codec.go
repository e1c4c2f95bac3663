package stage

import (
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/caravan/pkg/types"
)

const dateLayout = "2006-01-02"

type fileColumn struct {
	Name     string            `json:"name"`
	Type     types.LogicalType `json:"type"`
	Nullable bool              `json:"nullable"`
	Values   []any             `json:"values"`
}

type fileDocument struct {
	Rows    int          `json:"rows"`
	Columns []fileColumn `json:"columns"`
}

// Write persists the table at path atomically: the document is written
// to a sibling temp file and renamed into place.
func (t *Table) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}

	doc := fileDocument{Rows: t.rows, Columns: make([]fileColumn, len(t.Columns))}
	for i, col := range t.Columns {
		fc := fileColumn{
			Name:     col.Name,
			Type:     col.Type,
			Nullable: col.Nullable,
			Values:   make([]any, len(col.Values)),
		}
		for j, v := range col.Values {
			enc, err := encodeCell(col.Type, v)
			if err != nil {
				return fmt.Errorf("column %s row %d: %w", col.Name, j, err)
			}
			fc.Values[j] = enc
		}
		doc.Columns[i] = fc
	}

	tmp := path + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(&doc); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding staging file: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads a staging file written by Write
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	dec.UseNumber()
	var doc fileDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	t := &Table{Columns: make([]Column, len(doc.Columns)), rows: doc.Rows}
	for i, fc := range doc.Columns {
		col := Column{Name: fc.Name, Type: fc.Type, Nullable: fc.Nullable, Values: make([]any, len(fc.Values))}
		for j, raw := range fc.Values {
			v, err := decodeCell(fc.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("%s: column %s row %d: %w", path, fc.Name, j, err)
			}
			col.Values[j] = v
		}
		t.Columns[i] = col
	}
	return t, nil
}

func encodeCell(typ types.LogicalType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case types.TypeInt, types.TypeFloat, types.TypeBool, types.TypeString:
		return v, nil
	case types.TypeTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time.Time, got %T", v)
		}
		return ts.UTC().Format(time.RFC3339Nano), nil
	case types.TypeDate:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time.Time, got %T", v)
		}
		return ts.UTC().Format(dateLayout), nil
	case types.TypeBinary:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", v)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return nil, fmt.Errorf("unknown logical type %q", typ)
	}
}

func decodeCell(typ types.LogicalType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch typ {
	case types.TypeInt:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return n.Int64()
	case types.TypeFloat:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return n.Float64()
	case types.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil
	case types.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case types.TypeTimestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return time.Parse(time.RFC3339Nano, s)
	case types.TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return time.Parse(dateLayout, s)
	case types.TypeBinary:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("unknown logical type %q", typ)
	}
}
