// Package gateway is the console's single point of outbound HTTP to the
// remote EMS API.  Every call carries the session's bearer token, and every
// 401 answer, whichever call triggered it, goes through one injected
// handler before the caller sees apperr.ErrUnauthorized.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// StatusError is a remote failure: a non-2xx status, or a 2xx whose
// envelope carried an explicit failure flag.
type StatusError struct {
	Status  int
	Message string
	TraceID string
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "remote api: %d %s", e.Status, http.StatusText(e.Status))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.TraceID != "" {
		fmt.Fprintf(&b, " (trace %s)", e.TraceID)
	}
	return b.String()
}

// NewHTTPClient returns the shared outbound client, traced with otelhttp.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Client talks to the EMS API on behalf of one session.
type Client struct {
	base           *url.URL
	http           *http.Client
	token          func() string
	onUnauthorized func(ctx context.Context)
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets where the bearer token is read from before each call.
func WithToken(f func() string) Option { return func(c *Client) { c.token = f } }

// WithUnauthorizedHandler sets the callback run on every 401 answer.  The
// composing application uses it to clear the persisted token; navigation
// back to the login entry point is its business too.
func WithUnauthorizedHandler(f func(ctx context.Context)) Option {
	return func(c *Client) { c.onUnauthorized = f }
}

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the API rooted at baseURL.
func New(baseURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q is not absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		base:           u,
		http:           httpClient,
		token:          func() string { return "" },
		onUnauthorized: func(context.Context) {},
		log:            zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accept      string
}

func jsonRequest(method, path string, v any) (request, error) {
	r := request{method: method, path: path}
	if v != nil {
		bs, err := json.Marshal(v)
		if err != nil {
			return r, err
		}
		r.body = bytes.NewReader(bs)
		r.contentType = "application/json"
	}
	return r, nil
}

// send performs r and returns the response of a 2xx answer.  The caller
// closes the body.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return nil, err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api call failed", zap.String("method", r.method), zap.String("path", r.path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	c.log.Debug("api call",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.onUnauthorized(ctx)
		return nil, apperr.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) *StatusError {
	se := &StatusError{Status: resp.StatusCode}
	bs, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env model.Envelope[json.RawMessage]
	if json.Unmarshal(bs, &env) == nil {
		se.Message, se.TraceID = env.Message, env.TraceID
	} else if s := strings.TrimSpace(string(bs)); s != "" && len(s) < 512 {
		se.Message = s
	}
	return se
}

// call performs r and decodes the enveloped result.
func call[T any](ctx context.Context, c *Client, r request) (model.Envelope[T], error) {
	var env model.Envelope[T]
	resp, err := c.send(ctx, r)
	if err != nil {
		return env, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return env, fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}
	if env.Failed() {
		return env, &StatusError{Status: resp.StatusCode, Message: env.Message, TraceID: env.TraceID}
	}
	return env, nil
}

// callBool performs r and reads a boolean result.  Some endpoints answer
// with a bare JSON boolean instead of an envelope; both are accepted.
func callBool(ctx context.Context, c *Client, r request) (bool, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%s %s: read response: %w", r.method, r.path, err)
	}
	bs = bytes.TrimSpace(bs)
	if len(bs) == 0 {
		return true, nil
	}
	var plain bool
	if json.Unmarshal(bs, &plain) == nil {
		return plain, nil
	}
	var env model.Envelope[bool]
	if err := json.Unmarshal(bs, &env); err != nil {
		return false, fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}
	if env.Failed() {
		return false, &StatusError{Status: resp.StatusCode, Message: env.Message, TraceID: env.TraceID}
	}
	return env.Result, nil
}
