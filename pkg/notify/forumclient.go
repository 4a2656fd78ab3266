package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPGroupClient talks to a forum's admin API. Requests carry a bearer
// token; non-2xx responses surface as errors so the dispatcher's retry
// policy applies.
type HTTPGroupClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGroupClient creates a client for the forum API at baseURL.
func NewHTTPGroupClient(baseURL, token string) *HTTPGroupClient {
	return &HTTPGroupClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPGroupClient) LookupGroup(ctx context.Context, name string) (int64, error) {
	var body struct {
		ID int64 `json:"id"`
	}
	path := "/api/groups/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return 0, err
	}
	return body.ID, nil
}

func (c *HTTPGroupClient) AssignGroup(ctx context.Context, username string, groupID int64) error {
	req := struct {
		GroupID int64 `json:"group_id"`
	}{GroupID: groupID}
	path := "/api/users/" + url.PathEscape(username) + "/group"
	return c.do(ctx, http.MethodPut, path, req, nil)
}

func (c *HTTPGroupClient) Suspend(ctx context.Context, username string) error {
	path := "/api/users/" + url.PathEscape(username) + "/suspend"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *HTTPGroupClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body *bytes.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forum API %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
