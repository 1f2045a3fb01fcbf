package eval

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/table"
)

// Importable reports whether the generic importer reads files with ext.
func Importable(ext string) bool {
	switch ext {
	case "json", "jsonl", "ndjson":
		return true
	}
	return false
}

// importFile is the generic importer. It reads JSON (an array of objects or
// an object of column arrays) and JSON Lines; every other format is an
// *format.UnsupportedFormatError.
func importFile(path string) (*table.Table, error) {
	ext := format.Extension(path)
	switch ext {
	case "json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return importJSON(data)
	case "jsonl", "ndjson":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return importJSONLines(bufio.NewScanner(f))
	}
	return nil, &format.UnsupportedFormatError{Path: path, Extension: ext}
}

func importJSON(data []byte) (*table.Table, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &table.Table{}, nil
	}
	switch data[0] {
	case '[':
		var objs []json.RawMessage
		if err := json.Unmarshal(data, &objs); err != nil {
			return nil, err
		}
		return rowsFromObjects(objs)
	case '{':
		return columnsFromObject(data)
	}
	return nil, fmt.Errorf("json: expected an array or object")
}

func importJSONLines(sc *bufio.Scanner) (*table.Table, error) {
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var objs []json.RawMessage
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		objs = append(objs, json.RawMessage(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rowsFromObjects(objs)
}

// rowsFromObjects treats each object as a row. Columns appear in the order
// their keys are first seen.
func rowsFromObjects(objs []json.RawMessage) (*table.Table, error) {
	var names []string
	index := map[string]int{}
	rows := make([][]string, len(objs))
	for r, raw := range objs {
		keys, values, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r+1, err)
		}
		row := make([]string, len(names))
		for k, key := range keys {
			c, ok := index[key]
			if !ok {
				c = len(names)
				index[key] = c
				names = append(names, key)
			}
			for len(row) <= c {
				row = append(row, "")
			}
			row[c] = values[k]
		}
		rows[r] = row
	}
	return buildTable(names, rows)
}

// columnsFromObject reads {"col": [v1, v2], ...}.
func columnsFromObject(data []byte) (*table.Table, error) {
	keys, _, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	var cols map[string][]json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("json: expected an object of arrays: %w", err)
	}
	height := 0
	for _, v := range cols {
		height = max(height, len(v))
	}
	rows := make([][]string, height)
	for r := range rows {
		rows[r] = make([]string, len(keys))
		for c, key := range keys {
			if r < len(cols[key]) {
				rows[r][c] = cellText(cols[key][r])
			}
		}
	}
	return buildTable(keys, rows)
}

// decodeObject returns an object's keys in document order with each value
// rendered as cell text.
func decodeObject(raw []byte) ([]string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object")
	}
	var keys, values []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, cellText(v))
	}
	return keys, values, nil
}

// cellText renders a JSON value the way a text cell would hold it.
func cellText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return string(raw)
}
