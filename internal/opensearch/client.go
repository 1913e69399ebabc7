package opensearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/cdabench/internal/ratelimit"
	"github.com/ppiankov/cdabench/internal/target"
)

const (
	defaultTimeout = 60 * time.Second
	maxSearchBody  = 32 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// Client talks to one target's OpenSearch endpoint. Requests are paced by
// the target's rate limit. Safe for concurrent use.
type Client struct {
	base    *url.URL
	creds   target.Credentials
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewClient returns a client bound to t.
func NewClient(t *target.Target, opts ...Option) *Client {
	c := &Client{
		base:    t.URL,
		creds:   t.Credentials,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: ratelimit.NewLimiter(t.RateLimit),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search runs a query and parses the GeoJSON response.
func (c *Client) Search(ctx context.Context, q Query) (*Result, error) {
	u := *c.base
	values := u.Query()
	for k, vs := range q.Values() {
		values[k] = vs
	}
	u.RawQuery = values.Encode()

	req, err := c.newRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.base.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: u.String()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return nil, fmt.Errorf("search %s: read body: %w", c.base.Host, err)
	}
	elapsed := time.Since(start)

	res, err := decodeFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.base.Host, err)
	}
	res.Elapsed = elapsed
	return res, nil
}

// Fetch downloads at most limit bytes of rawURL, measuring time to first byte.
// limit <= 0 reads the whole body.
func (c *Client) Fetch(ctx context.Context, rawURL string, limit int64) (*Download, error) {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	dl := &Download{Status: resp.StatusCode, TTFB: time.Since(start)}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dl, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit)
	}
	n, err := io.Copy(io.Discard, body)
	dl.Bytes = n
	dl.Elapsed = time.Since(start)
	if err != nil {
		return dl, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}
	return dl, nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.creds.Username != "" {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}
	req.Header.Set("User-Agent", "cdabench")
	return req, nil
}
