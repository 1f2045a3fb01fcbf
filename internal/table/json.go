package table

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

type jsonColumn struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Values []any  `json:"values"`
}

type jsonTable struct {
	Columns []jsonColumn `json:"columns"`
}

// MarshalJSON encodes the table column-wise. Timestamps are RFC 3339 strings.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := jsonTable{Columns: make([]jsonColumn, len(t.Columns))}
	for i, c := range t.Columns {
		values := c.Values
		if c.Type == Timestamp {
			values = make([]any, len(c.Values))
			for k, v := range c.Values {
				if ts, ok := v.(time.Time); ok {
					values[k] = ts.Format(time.RFC3339Nano)
				}
			}
		}
		if values == nil {
			values = []any{}
		}
		out.Columns[i] = jsonColumn{Name: c.Name, Type: c.Type.String(), Values: values}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the column-wise form written by MarshalJSON and
// coerces every value to its column's type.
func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var in jsonTable
	if err := dec.Decode(&in); err != nil {
		return err
	}

	cols := make([]Column, len(in.Columns))
	for i, jc := range in.Columns {
		typ := String
		if jc.Type != "" {
			var err error
			if typ, err = ParseType(jc.Type); err != nil {
				return err
			}
		}
		values := make([]any, len(jc.Values))
		for k, raw := range jc.Values {
			v, err := coerceJSON(raw, typ)
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", jc.Name, k+1, err)
			}
			values[k] = v
		}
		cols[i] = Column{Name: jc.Name, Type: typ, Values: values}
	}
	built, err := New(cols...)
	if err != nil {
		return err
	}
	*t = *built
	return nil
}

func coerceJSON(raw any, typ Type) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch typ {
	case Int:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want integer, got %T", raw)
		}
		return n.Int64()
	case Float:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", raw)
		}
		return n.Float64()
	case Bool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want boolean, got %T", raw)
		}
		return b, nil
	case Timestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want RFC 3339 string, got %T", raw)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		if n, ok := raw.(json.Number); ok {
			return n.String(), nil
		}
		return fmt.Sprint(raw), nil
	}
}
