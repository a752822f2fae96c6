// Package apify runs Apify actors synchronously and returns their dataset
// items.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.apify.com"

// Client runs actors.
type Client interface {
	// RunSync starts actor with input, waits for the run to finish and
	// returns the default dataset's items.
	RunSync(ctx context.Context, actor string, input any, opts RunOptions) ([]json.RawMessage, error)
}

// RunOptions tunes a single actor run.
type RunOptions struct {
	// Timeout is forwarded to Apify as the run timeout. Zero lets the actor
	// default apply.
	Timeout time.Duration
	// MemoryMB caps the run's memory. Zero uses the actor default.
	MemoryMB int
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound runs at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// TokenFunc resolves the API token for one request.
type TokenFunc func(ctx context.Context) (string, error)

// WithTokenSource resolves the token on every request instead of using the
// key given to NewClient, so rotated credentials take effect without a
// restart.
func WithTokenSource(fn TokenFunc) Option {
	return func(c *httpClient) {
		c.tokenFn = fn
	}
}

type httpClient struct {
	token   string
	tokenFn TokenFunc
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActorPath converts "user/actor" into the "user~actor" form used in URLs.
func ActorPath(actor string) string {
	return strings.ReplaceAll(actor, "/", "~")
}

func (c *httpClient) RunSync(ctx context.Context, actor string, input any, opts RunOptions) ([]json.RawMessage, error) {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "apify: rate limit wait")
	}

	buf, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal input")
	}

	q := url.Values{}
	if opts.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(int(opts.Timeout.Seconds())))
	}
	if opts.MemoryMB > 0 {
		q.Set("memory", strconv.Itoa(opts.MemoryMB))
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", c.baseURL, ActorPath(actor))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "apify: run %s", actor)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apify: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrap(err, "apify: decode dataset items")
	}
	return items, nil
}

func (c *httpClient) resolveToken(ctx context.Context) (string, error) {
	if c.tokenFn == nil {
		return c.token, nil
	}
	tok, err := c.tokenFn(ctx)
	if err != nil {
		return "", eris.Wrap(err, "apify: resolve token")
	}
	return tok, nil
}
