package nctables

import (
	"context"
	"fmt"
	"maps"
	"sort"
)

const pageSize = 100

func columnsEndpoint(tableID int64) string {
	return fmt.Sprintf("index.php/apps/tables/api/1/tables/%d/columns", tableID)
}

func rowsEndpoint(tableID int64) string {
	return fmt.Sprintf("index.php/apps/tables/api/1/tables/%d/rows", tableID)
}

// FetchTable downloads a table's column metadata and all of its rows and
// decodes them into a Table. Column ids resolve to titles and select-column
// option ids resolve to labels. With explode set, a cell holding a non-empty
// list of objects fans out into one output row per list element, with the
// object keys flattened into "{column}_{key}" columns; scalar cells repeat
// across the fanned-out rows.
func (c *Client) FetchTable(ctx context.Context, tableID int64, explode bool) (*Table, error) {
	columns, err := c.fetchColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}

	titles := make(map[int64]string, len(columns))
	options := make(map[int64]map[int64]string)
	order := make([]string, 0, len(columns))
	for _, col := range columns {
		titles[col.ID] = col.Title
		order = append(order, col.Title)
		if col.Type != "select" && col.Type != "selection" {
			continue
		}
		opts := make(map[int64]string)
		for _, opt := range col.SelectionOptions {
			label := firstNonEmpty(opt.Label, opt.Text, opt.Title)
			if opt.ID != nil && label != "" {
				opts[*opt.ID] = label
			}
		}
		if len(opts) > 0 {
			options[col.ID] = opts
		}
	}

	rawRows, err := c.fetchAllRows(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if len(rawRows) == 0 {
		return &Table{Columns: order}, nil
	}

	var (
		out       []map[string]any
		extra     []string
		seenExtra = make(map[string]bool)
	)
	for _, raw := range rawRows {
		base := make(map[string]any)
		ex := newExplodeSet()
		for _, entry := range raw.Data.entries {
			title, known := titles[entry.columnID]
			if !known {
				continue
			}
			v := decodeCell(entry.value, entry.columnID, options)
			if explode && explodable(v) {
				ex.add(title, v.([]any))
			} else {
				base[title] = v
			}
		}
		if explode && len(ex.names) > 0 {
			out = append(out, ex.expand(base, &extra, seenExtra)...)
		} else {
			out = append(out, base)
		}
	}

	table := &Table{Rows: out}
	if explode {
		table.Columns = append(order, extra...)
	} else {
		table.Columns = order
	}
	table.fillMissing()
	return table, nil
}

func (c *Client) fetchColumns(ctx context.Context, tableID int64) ([]Column, error) {
	var columns []Column
	if err := c.doJSON(ctx, "GET", columnsEndpoint(tableID), nil, &columns, false); err != nil {
		return nil, err
	}
	return columns, nil
}

// fetchAllRows pages through the rows endpoint until a short or empty page.
func (c *Client) fetchAllRows(ctx context.Context, tableID int64) ([]row, error) {
	var all []row
	offset := 0
	for {
		endpoint := fmt.Sprintf("%s?limit=%d&offset=%d", rowsEndpoint(tableID), pageSize, offset)
		var page []row
		if err := c.doJSON(ctx, "GET", endpoint, nil, &page, false); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

// explodable reports whether a decoded cell fans out into multiple rows:
// a non-empty list whose first element is an object.
func explodable(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	_, ok = list[0].(map[string]any)
	return ok
}

// explodeSet collects the exploding cells of one source row, keeping the
// order in which the columns appeared.
type explodeSet struct {
	names []string
	items map[string][]any
}

func newExplodeSet() *explodeSet {
	return &explodeSet{items: make(map[string][]any)}
}

func (e *explodeSet) add(name string, list []any) {
	if _, ok := e.items[name]; !ok {
		e.names = append(e.names, name)
	}
	e.items[name] = list
}

// expand produces one output row per list index up to the longest list.
// Lists pair positionally; a column whose list is shorter contributes
// nothing to the remaining rows. Object elements flatten into
// "{column}_{key}" cells; other elements land under the column itself.
// Newly introduced column titles are appended to extra in first-appearance
// order.
func (e *explodeSet) expand(base map[string]any, extra *[]string, seen map[string]bool) []map[string]any {
	maxItems := 0
	for _, items := range e.items {
		if len(items) > maxItems {
			maxItems = len(items)
		}
	}

	rows := make([]map[string]any, 0, maxItems)
	for i := 0; i < maxItems; i++ {
		r := maps.Clone(base)
		for _, name := range e.names {
			items := e.items[name]
			if i >= len(items) {
				continue
			}
			obj, ok := items[i].(map[string]any)
			if !ok {
				r[name] = items[i]
				continue
			}
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				flat := name + "_" + k
				r[flat] = obj[k]
				if !seen[flat] {
					seen[flat] = true
					*extra = append(*extra, flat)
				}
			}
		}
		rows = append(rows, r)
	}
	return rows
}

// fillMissing guarantees every column title is present in every row.
func (t *Table) fillMissing() {
	for _, r := range t.Rows {
		for _, col := range t.Columns {
			if _, ok := r[col]; !ok {
				r[col] = nil
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
