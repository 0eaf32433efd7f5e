package nctables

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Upload inserts the rows of table into the remote table, one request per
// row, and returns the created row ids in input order. Column titles resolve
// to ids once up front; titles with no remote counterpart reject the whole
// upload as *UnknownColumnError before any row is sent. Nil cells are
// omitted from the payload entirely. With replace set, existing rows are
// deleted first. The first failed insert aborts the remainder; rows created
// up to that point stay.
func (c *Client) Upload(ctx context.Context, tableID int64, table *Table, replace bool) ([]int64, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, nil
	}

	columns, err := c.fetchColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(columns))
	for _, col := range columns {
		ids[col.Title] = col.ID
	}

	var unknown []string
	for _, title := range table.Columns {
		if _, ok := ids[title]; !ok {
			unknown = append(unknown, title)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownColumnError{Columns: unknown}
	}

	if replace {
		if _, err := c.Clear(ctx, tableID); err != nil {
			return nil, fmt.Errorf("clear before upload: %w", err)
		}
	}

	var created []int64
	for _, r := range table.Rows {
		data := make(map[string]any)
		for _, title := range table.Columns {
			v, ok := r[title]
			if !ok || v == nil {
				continue
			}
			data[strconv.FormatInt(ids[title], 10)] = v
		}
		if len(data) == 0 {
			continue
		}

		var resp struct {
			ID int64 `json:"id"`
		}
		if err := c.doJSON(ctx, "POST", rowsEndpoint(tableID), map[string]any{"data": data}, &resp, false); err != nil {
			return created, err
		}
		if resp.ID != 0 {
			created = append(created, resp.ID)
		}
	}
	return created, nil
}

// Clear deletes every row of the table and returns the number deleted.
// Rows are fetched page by page and deleted one request at a time.
func (c *Client) Clear(ctx context.Context, tableID int64) (int, error) {
	deleted := 0
	for {
		endpoint := fmt.Sprintf("%s?limit=%d&offset=0", rowsEndpoint(tableID), pageSize)
		var page []row
		if err := c.doJSON(ctx, "GET", endpoint, nil, &page, false); err != nil {
			return deleted, err
		}
		if len(page) == 0 {
			return deleted, nil
		}
		for _, r := range page {
			if r.ID == 0 {
				continue
			}
			endpoint := fmt.Sprintf("index.php/apps/tables/api/1/rows/%d", r.ID)
			if err := c.doJSON(ctx, "DELETE", endpoint, nil, nil, false); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
}
