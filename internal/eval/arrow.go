package eval

// arrow.go converts between table.Table and Arrow records.

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/JonMunkholm/tableio/internal/table"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

func arrowType(t table.Type) arrow.DataType {
	switch t {
	case table.Int:
		return arrow.PrimitiveTypes.Int64
	case table.Float:
		return arrow.PrimitiveTypes.Float64
	case table.Bool:
		return arrow.FixedWidthTypes.Boolean
	case table.Timestamp:
		return timestampType
	default:
		return arrow.BinaryTypes.String
	}
}

// toRecord builds one Arrow record holding every row. The caller releases it.
func toRecord(mem memory.Allocator, tbl *table.Table) (arrow.Record, error) {
	fields := make([]arrow.Field, len(tbl.Columns))
	for i, c := range tbl.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, c := range tbl.Columns {
		if err := appendColumn(b.Field(i), c); err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	return b.NewRecord(), nil
}

func appendColumn(fb array.Builder, c table.Column) error {
	for _, v := range c.Values {
		if v == nil {
			fb.AppendNull()
			continue
		}
		var ok bool
		switch bb := fb.(type) {
		case *array.Int64Builder:
			var n int64
			if n, ok = v.(int64); ok {
				bb.Append(n)
			}
		case *array.Float64Builder:
			var f float64
			if f, ok = v.(float64); ok {
				bb.Append(f)
			}
		case *array.BooleanBuilder:
			var x bool
			if x, ok = v.(bool); ok {
				bb.Append(x)
			}
		case *array.TimestampBuilder:
			var ts time.Time
			if ts, ok = v.(time.Time); ok {
				bb.Append(arrow.Timestamp(ts.UnixMicro()))
			}
		case *array.StringBuilder:
			bb.Append(table.FormatValue(v, ""))
			ok = true
		}
		if !ok {
			return fmt.Errorf("value %v (%T) does not match type %s", v, v, c.Type)
		}
	}
	return nil
}

// fromRecords concatenates records sharing schema into a table.
func fromRecords(schema *arrow.Schema, recs []arrow.Record) (*table.Table, error) {
	cols := make([]table.Column, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = table.Column{Name: f.Name, Type: tableType(f.Type)}
	}
	for _, rec := range recs {
		for i := range cols {
			arr := rec.Column(i)
			for row := 0; row < arr.Len(); row++ {
				cols[i].Values = append(cols[i].Values, arrowValue(arr, row, cols[i].Type))
			}
		}
	}
	for i := range cols {
		if cols[i].Values == nil {
			cols[i].Values = []any{}
		}
	}
	return table.New(cols...)
}

func tableType(dt arrow.DataType) table.Type {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return table.Int
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.UINT64:
		return table.Float
	case arrow.BOOL:
		return table.Bool
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return table.Timestamp
	default:
		return table.String
	}
}

func arrowValue(arr arrow.Array, i int, typ table.Type) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return float64(a.Value(i))
	case *array.Float16:
		return float64(a.Value(i).Float32())
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	}
	if typ != table.String {
		return nil
	}
	return arr.ValueStr(i)
}
