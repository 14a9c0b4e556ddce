// AngelaMos | 2026
// client.go

/*
Package plex talks to plex.tv and to the Plex Media Server itself.

plex.tv endpoints used:
  - GET    /api/servers/{machine}                      section directory (XML)
  - GET    /api/servers/{machine}/shared_servers       sharing grants (XML)
  - POST   /api/servers/{machine}/shared_servers       invite
  - PUT    /api/servers/{machine}/shared_servers/{id}  replace section set
  - DELETE /api/servers/{machine}/shared_servers/{id}  remove grant
  - DELETE /api/v2/friends/{id}                        drop friendship
  - POST   /api/v2/pins, GET /api/v2/pins/{id}         PIN login
  - GET    /api/v2/user                                account lookup

The media server is only queried for library listings and item counts.
*/
package plex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/metrics"
)

const maxErrorBody = 512

type Client struct {
	token      string
	machineID  string
	tvBaseURL  string
	serverURL  string
	clientID   string
	product    string
	httpClient *http.Client
}

func NewClient(cfg config.PlexConfig) *Client {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "novix-tv"
	}
	product := cfg.Product
	if product == "" {
		product = "NovixTV"
	}
	base := cfg.TVBaseURL
	if base == "" {
		base = "https://plex.tv"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		token:      cfg.Token,
		machineID:  cfg.MachineID,
		tvBaseURL:  base,
		serverURL:  cfg.ServerURL,
		clientID:   clientID,
		product:    product,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is returned for any plex.tv or server response with status >= 400.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(
		"plex %s: status %d: %s",
		e.Operation,
		e.StatusCode,
		e.Body,
	)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return core.ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err is a plex 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type request struct {
	op      string
	method  string
	url     string
	body    any
	token   string
	anon    bool
	accept  string
	headers map[string]string
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.
			WithLabelValues("plex", r.op).
			Observe(time.Since(start).Seconds())
	}()

	var body io.Reader = http.NoBody
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token := r.token
	if token == "" && !r.anon {
		token = c.token
	}
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", c.product)

	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plex %s: %w", r.op, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("plex %s: read body: %w", r.op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &APIError{
			Operation:  r.op,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	return data, nil
}

func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	data, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("plex %s: decode response: %w", r.op, err)
	}
	return nil
}

func (c *Client) tvURL(format string, args ...any) string {
	return c.tvBaseURL + fmt.Sprintf(format, args...)
}
