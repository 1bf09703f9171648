package connection

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/zonemesh-go/internal/infra/buildinfo"
)

const (
	defaultTimeout = 10 * time.Second
	unixScheme     = "unix://"
)

// APIError is an error answer of the admin API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Client talks to one peer's admin API.
type Client struct {
	baseURL string
	client  *http.Client
	tls     *tls.Config
}

// Option configures a Client.
type Option func(*Client)

// WithTLSConfig sets the TLS client config. A bare "host:port" address
// then defaults to https.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.tls = cfg
	}
}

// NewClient creates a client for addr: "host:port", an http(s) URL or
// unix:///path/to/socket.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	if path, ok := strings.CutPrefix(addr, unixScheme); ok {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
		c.baseURL = "http://localhost"
		c.client = &http.Client{Timeout: defaultTimeout, Transport: t}
		return c
	}

	scheme := "http://"
	transport := http.DefaultTransport
	if c.tls != nil {
		scheme = "https://"
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = c.tls
		transport = t
	}
	c.baseURL = strings.TrimRight(addr, "/")
	if !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		c.baseURL = scheme + c.baseURL
	}
	c.client = &http.Client{Timeout: defaultTimeout, Transport: transport}
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope mirrors the admin API response wrapper.
type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Get fetches path and decodes the data member of the response into
// target. A nil target discards it.
func (c *Client) Get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "zonemesh-cli/"+buildinfo.Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}
