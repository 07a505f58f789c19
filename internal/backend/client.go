// Package backend is the authenticated REST client for the investigations
// backend. It owns bearer-token injection, request pacing, retry with
// backoff, and the mapping of HTTP failures onto the engine's error
// taxonomy. All job state flows through here; nothing in the engine
// mutates a job without a snapshot from this client.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/casedesk/intel-cli/internal/model"
)

// CredentialSource supplies the bearer token for each request. The host
// shell's credential store implements this; tests use a static token.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialSource backed by a fixed string.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", model.ErrAuthRequired
	}
	return string(t), nil
}

// Options configures the backend client.
type Options struct {
	BaseURL     string
	Credentials CredentialSource
	Timeout     time.Duration
	MaxRetries  int
	RatePerSec  float64
	UserAgent   string
}

// Client talks to the backend REST API.
type Client struct {
	base       *url.URL
	http       *http.Client
	longpoll   *http.Client // no client timeout; bounded by request context
	creds      CredentialSource
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
}

// New creates a backend client from options.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, eris.New("backend: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "backend: parse base URL")
	}
	if opts.Credentials == nil {
		return nil, eris.New("backend: credential source is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 10
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "intel-cli/1.0"
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		base:       base,
		http:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		longpoll:   &http.Client{Transport: transport},
		creds:      opts.Credentials,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), int(math.Max(1, opts.RatePerSec))),
		maxRetries: opts.MaxRetries,
		userAgent:  opts.UserAgent,
	}, nil
}

// callOpts tweaks per-request behavior.
type callOpts struct {
	noRetry  bool // exports are never retried automatically
	longPoll bool // use the untimed client; caller bounds via context
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// newRequest builds an authenticated JSON request.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	u := c.endpoint(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, eris.Wrap(err, "backend: create request")
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "backend: resolve credentials")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request, retrying transport failures, 429s, and 5xx
// responses with exponential backoff. A returned response always has a
// status below 500 (or retries were exhausted).
func (c *Client) do(ctx context.Context, req *http.Request, body []byte, opts callOpts) (*http.Response, error) {
	client := c.http
	if opts.longPoll {
		client = c.longpoll
	}
	attempts := c.maxRetries
	if opts.noRetry {
		attempts = 1
	}

	op := req.Method + " " + req.URL.Path

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &model.TransportError{Op: op, Err: err}
		}

		cloned := req.Clone(ctx)
		if body != nil {
			cloned.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := client.Do(cloned)
		if err != nil {
			lastErr = &model.TransportError{Op: op, Err: err}
			if opts.noRetry || ctx.Err() != nil {
				return nil, lastErr
			}
			zap.L().Warn("backend: request failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			detail := readDetail(resp)
			_ = resp.Body.Close()
			lastErr = &model.BackendError{Status: resp.StatusCode, Detail: detail}
			if opts.noRetry {
				return nil, lastErr
			}
			zap.L().Warn("backend: retryable status",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	base := 500 * time.Millisecond
	maxBackoff := 15 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int63n(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// callJSON performs a request and decodes a JSON response into out (when
// out is non-nil). Non-2xx responses map onto the error taxonomy.
func (c *Client) callJSON(ctx context.Context, method, path string, query url.Values, in, out any, opts callOpts) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "backend: marshal request body")
		}
		body = b
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, req, body, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "backend: decode %s response", path)
	}
	return nil
}

// checkStatus maps non-2xx responses to taxonomy errors. 401 is the
// authentication-required condition, never a generic backend failure.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail := readDetail(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		if detail != "" {
			return eris.Wrap(model.ErrAuthRequired, detail)
		}
		return model.ErrAuthRequired
	}
	return &model.BackendError{Status: resp.StatusCode, Detail: detail}
}

// readDetail extracts the backend's structured detail message, tolerating
// non-JSON bodies.
func readDetail(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(b, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(b))
}
