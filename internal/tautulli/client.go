// AngelaMos | 2026
// client.go

package tautulli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/metrics"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.TautulliConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Response struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	} `json:"response"`
}

func (c *Client) Name() string {
	return "tautulli"
}

// RemoveMember deletes the user and their history from Tautulli.
func (c *Client) RemoveMember(ctx context.Context, plexUserID string) error {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.
			WithLabelValues("tautulli", "delete_user").
			Observe(time.Since(start).Seconds())
	}()

	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("cmd", "delete_user")
	q.Set("user_id", plexUserID)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/api/v2?"+q.Encode(),
		http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("tautulli: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tautulli delete_user: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("tautulli delete_user: read body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("tautulli delete_user: status %d", resp.StatusCode)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("tautulli delete_user: invalid response: %w", err)
	}

	if out.Response.Result != "success" {
		msg := out.Response.Message
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("tautulli delete_user: %s", msg)
	}

	return nil
}
