// Package sdk provides typed Go access to the LearnSync HTTP + WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"learnsync/core"
	"learnsync/devicesync"
	"learnsync/leaderboard"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the LearnSync HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL
// (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAPIKey adds an X-API-Key header to all requests (HTTP + WS).
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header instead.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Authenticate runs the device auth handshake. A resolved rejection (unknown
// tenant, inactive user) comes back as an AuthResult with OK=false and a
// Reason, not as an error.
func (c *Client) Authenticate(ctx context.Context, tenantCode, email string) (devicesync.AuthResult, error) {
	body, err := json.Marshal(map[string]string{"tenant_code": tenantCode, "email": email})
	if err != nil {
		return devicesync.AuthResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sync/auth", bytes.NewReader(body))
	if err != nil {
		return devicesync.AuthResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return devicesync.AuthResult{}, err
	}
	defer resp.Body.Close()

	var res devicesync.AuthResult
	if err := decodeJSON(resp, &res); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "auth_failed" {
			return devicesync.AuthResult{Reason: apiErr.Message}, nil
		}
		return devicesync.AuthResult{}, err
	}
	return res, nil
}

// SyncBundle fetches the full device snapshot for a user.
func (c *Client) SyncBundle(ctx context.Context, userID core.UserID, tenantID core.TenantID) (devicesync.Bundle, error) {
	if userID == "" {
		return devicesync.Bundle{}, ErrEmptyUserID
	}
	if tenantID == "" {
		return devicesync.Bundle{}, ErrEmptyTenantID
	}
	u := fmt.Sprintf("%s/sync/bundle?user=%s&tenant=%s",
		c.baseURL, url.QueryEscape(string(userID)), url.QueryEscape(string(tenantID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return devicesync.Bundle{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return devicesync.Bundle{}, err
	}
	defer resp.Body.Close()

	var b devicesync.Bundle
	if err := decodeJSON(resp, &b); err != nil {
		return devicesync.Bundle{}, err
	}
	return b, nil
}

// PublishEvent broadcasts an event and returns how many live connections
// received it.
func (c *Client) PublishEvent(ctx context.Context, ev core.Event) (int, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var res struct {
		Delivered int `json:"delivered"`
	}
	if err := decodeJSON(resp, &res); err != nil {
		return 0, err
	}
	return res.Delivered, nil
}

// Replay returns the buffered events for a user since the given time, for
// poll-based catch-up when a live stream is not an option. A zero since
// returns the whole retained window.
func (c *Client) Replay(ctx context.Context, userID core.UserID, tenantID core.TenantID, since time.Time) ([]core.Event, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}
	u, err := url.Parse(c.baseURL + "/events/replay")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("user", string(userID))
	q.Set("tenant", string(tenantID))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res struct {
		Events []core.Event `json:"events"`
	}
	if err := decodeJSON(resp, &res); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// Leaderboard returns the tenant's top n entries (server default when n <= 0).
func (c *Client) Leaderboard(ctx context.Context, tenantID core.TenantID, n int) ([]leaderboard.Entry, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}
	u := fmt.Sprintf("%s/leaderboard/%s", c.baseURL, url.PathEscape(string(tenantID)))
	if n > 0 {
		u += fmt.Sprintf("?n=%d", n)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res struct {
		Entries []leaderboard.Entry `json:"entries"`
	}
	if err := decodeJSON(resp, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// RegistryStats fetches the live connection gauges.
func (c *Client) RegistryStats(ctx context.Context) (RegistryStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/registry/stats", nil)
	if err != nil {
		return RegistryStats{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RegistryStats{}, err
	}
	defer resp.Body.Close()

	var st RegistryStats
	if err := decodeJSON(resp, &st); err != nil {
		return RegistryStats{}, err
	}
	return st, nil
}

// Health probes /healthz.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// StreamEvents attaches to the WebSocket stream as the given user/platform
// and emits events, starting with the catch-up replay since the given time
// (zero for the whole retained window). The returned channel closes when ctx
// is done or the connection drops.
func (c *Client) StreamEvents(ctx context.Context, userID core.UserID, tenantID core.TenantID, platform core.Platform, since time.Time) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("user", string(userID))
	q.Set("tenant", string(tenantID))
	q.Set("platform", string(platform))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
