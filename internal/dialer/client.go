package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
)

// Client talks to the call engine's control API to place outbound calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new call engine client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Dial asks the engine to place a call for the given dial context. The
// engine answers before the call progresses; lifecycle updates arrive
// later through the webhook.
func (c *Client) Dial(ctx context.Context, dial types.DialContext) error {
	data, err := json.Marshal(dial)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/dial", c.baseURL), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("engine rejected dial: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Health checks if the engine is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine unhealthy: status code %d", resp.StatusCode)
	}

	return nil
}
