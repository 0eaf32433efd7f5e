package nctables

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Column describes a remote table column as returned by the columns endpoint.
type Column struct {
	ID               int64             `json:"id"`
	Title            string            `json:"title"`
	Type             string            `json:"type"`
	SelectionOptions []SelectionOption `json:"selectionOptions"`
}

// SelectionOption is one entry of a select/selection column's option list.
// The human-readable text has appeared under different keys across server
// versions, so all three are decoded.
type SelectionOption struct {
	ID    *int64 `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
	Title string `json:"title"`
}

// TableInfo is the subset of table metadata the pipeline cares about.
type TableInfo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Table is a decoded table: column titles in output order plus one value map
// per row. Every title in Columns is present in every row; absent cells
// hold nil.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// row is the wire form of a single table row.
type row struct {
	ID   int64   `json:"id"`
	Data rowData `json:"data"`
}

// cellEntry is one decoded (column id, raw value) pair of a row.
type cellEntry struct {
	columnID int64
	value    any
}

// rowData decodes the two shapes the rows endpoint uses for row contents:
// a list of {columnId, value} entries, or a map from stringified column id
// to either a raw value or a {value: ...} wrapper. Both shapes decode into
// the same entry list so the rest of the reader never branches on them.
type rowData struct {
	entries []cellEntry
}

func (d *rowData) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		d.entries = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []struct {
			ColumnID *int64          `json:"columnId"`
			Value    json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		for _, item := range list {
			if item.ColumnID == nil || item.Value == nil {
				continue
			}
			var v any
			if err := json.Unmarshal(item.Value, &v); err != nil {
				return err
			}
			d.entries = append(d.entries, cellEntry{columnID: *item.ColumnID, value: v})
		}
		return nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	for key, raw := range m {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		// Some columns wrap the cell content in {"value": ...}.
		if wrapper, ok := v.(map[string]any); ok {
			if inner, ok := wrapper["value"]; ok {
				v = inner
			}
		}
		d.entries = append(d.entries, cellEntry{columnID: id, value: v})
	}
	// Map iteration order is random; keep row decoding deterministic.
	sort.Slice(d.entries, func(i, j int) bool {
		return d.entries[i].columnID < d.entries[j].columnID
	})
	return nil
}
