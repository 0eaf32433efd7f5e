package nctables

import (
	"context"
	"fmt"
)

// ListTables returns all tables visible to the authenticated account.
func (c *Client) ListTables(ctx context.Context) ([]TableInfo, error) {
	var tables []TableInfo
	if err := c.doJSON(ctx, "GET", "index.php/apps/tables/api/1/tables", nil, &tables, false); err != nil {
		return nil, err
	}
	return tables, nil
}

// TableProperties fetches the metadata of a single table.
func (c *Client) TableProperties(ctx context.Context, tableID int64) (map[string]any, error) {
	var props map[string]any
	endpoint := fmt.Sprintf("index.php/apps/tables/api/1/tables/%d", tableID)
	if err := c.doJSON(ctx, "GET", endpoint, nil, &props, false); err != nil {
		return nil, err
	}
	return props, nil
}

// UpdateTableProperties updates selected table fields through the OCS v2
// endpoint and returns the updated table representation, unwrapped from the
// OCS envelope when present.
func (c *Client) UpdateTableProperties(ctx context.Context, tableID int64, props map[string]any) (map[string]any, error) {
	var body map[string]any
	endpoint := fmt.Sprintf("ocs/v2.php/apps/tables/api/2/tables/%d", tableID)
	if err := c.doJSON(ctx, "PUT", endpoint, props, &body, true); err != nil {
		return nil, err
	}
	if ocs, ok := body["ocs"].(map[string]any); ok {
		if data, ok := ocs["data"].(map[string]any); ok {
			return data, nil
		}
	}
	return body, nil
}
