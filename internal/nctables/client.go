// Package nctables reads and writes Nextcloud Tables over the Tables HTTP API.
package nctables

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Config holds the connection settings for a Tables instance.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client performs authenticated requests against one Nextcloud instance.
// All calls are synchronous; the client holds no mutable state, so a single
// client can be reused across operations.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient validates the connection settings and returns a client.
// Missing base URL or credentials fail here, before any request is made.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("nctables: base URL is not configured")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("nctables: username or password is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// doJSON performs one request and decodes the JSON response into out.
// A non-2xx status is returned as *StatusError with a body snippet; a body
// that fails to decode where JSON was expected is an error as well.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any, ocs bool) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ocs {
		req.Header.Set("OCS-APIRequest", "true")
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, endpoint, err)
	}
	return nil
}
