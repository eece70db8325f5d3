// Package crm talks to the Zoho CRM REST API: deal listings, per-record
// enrichment lookups, master lookup lists and follow-up tasks.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/metrics"
)

const (
	apiPrefix       = "/crm/v8"
	defaultPerPage  = 200
	maxErrorBody    = 64 << 10
	authHeaderValue = "Zoho-oauthtoken "
)

// Session is the per-request access context: a valid access token and the
// API domain it was issued for.
type Session struct {
	AccessToken string
	APIDomain   string
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient        *http.Client
	Timeout           time.Duration
	MaxPages          int
	PerPage           int
	EnrichConcurrency int
	Logger            *logging.Logger
	Metrics           *metrics.Metrics
}

// Client is safe for concurrent use.
type Client struct {
	http        *http.Client
	maxPages    int
	perPage     int
	concurrency int
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewClient creates a CRM client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout, Transport: newTransport()}
	}
	c := &Client{
		http:        httpClient,
		maxPages:    opts.MaxPages,
		perPage:     opts.PerPage,
		concurrency: opts.EnrichConcurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if c.maxPages <= 0 {
		c.maxPages = 5
	}
	if c.perPage <= 0 || c.perPage > defaultPerPage {
		c.perPage = defaultPerPage
	}
	if c.concurrency <= 0 {
		c.concurrency = 8
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// HTTPClient returns the underlying client, shared with the OAuth flow.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func newTransport() http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
}

// response is a raw CRM answer. Status 204 comes back with an empty body.
type response struct {
	status int
	body   []byte
}

// do performs one call. Transport failures come back as *errors.ErrUpstream
// with Err set; HTTP statuses are left to the caller.
func (c *Client) do(ctx context.Context, s Session, op, method, path string, query url.Values, body io.Reader) (*response, error) {
	if s.AccessToken == "" || s.APIDomain == "" {
		return nil, errors.ErrUnauthenticated
	}

	u := strings.TrimRight(s.APIDomain, "/") + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &errors.ErrUpstream{Operation: op, Err: err}
	}
	req.Header.Set("Authorization", authHeaderValue+s.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordCRMRequest(op, "error", time.Since(start).Seconds())
		return nil, &errors.ErrUpstream{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	c.metrics.RecordCRMRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, &errors.ErrUpstream{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// getJSON performs a GET and decodes a 2xx body into out. A 204 leaves out
// untouched. Other statuses return *errors.ErrUpstream carrying the payload.
func (c *Client) getJSON(ctx context.Context, s Session, op, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, s, op, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status > 299 {
		return upstreamError(op, resp)
	}
	if resp.status == http.StatusNoContent || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &errors.ErrUpstream{Operation: op, StatusCode: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func upstreamError(op string, resp *response) *errors.ErrUpstream {
	body := resp.body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &errors.ErrUpstream{Operation: op, StatusCode: resp.status, Body: string(body)}
}
