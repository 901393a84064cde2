package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopdash/dataaccess/cache"
	"github.com/shopdash/dataaccess/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Version and Commit are stamped into the User-Agent. Set with -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	// DefaultTimeout bounds every network attempt.
	DefaultTimeout = 10 * time.Second

	tracerName = "github.com/shopdash/dataaccess/api"
)

// TokenSource yields the current access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// Refresher renews the credential after the server rejected stale.
type Refresher interface {
	Refresh(ctx context.Context, stale string) (string, bool)
}

// Invalidator tears the session down.
type Invalidator interface {
	Invalidate(ctx context.Context, cause error) bool
}

// RequestOptions describes a single call. A nil *RequestOptions is a GET.
type RequestOptions struct {
	Method  string
	Body    any
	Headers map[string]string
	// Invalidate lists cache key substrings dropped after a successful write.
	Invalidate []string
	// SkipCache forces a GET to the network. The fresh response still
	// replaces the cached one.
	SkipCache bool
}

// Client is the single entry point for backend calls.
type Client struct {
	baseURL     string
	timeout     time.Duration
	cacheTTL    time.Duration
	http        *http.Client
	cache       *cache.Cache
	tokens      TokenSource
	refresher   Refresher
	invalidator Invalidator
	tracer      trace.Tracer
	logger      logger.Logger
	userAgent   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport client. Defaults to http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithCache shares c between clients. Without it the client owns a private cache.
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithTokens sets where the bearer token is read from.
func WithTokens(t TokenSource) Option {
	return func(cl *Client) { cl.tokens = t }
}

// WithRefresher enables renewal and a single retry on session-fatal responses.
func WithRefresher(r Refresher) Option {
	return func(cl *Client) { cl.refresher = r }
}

// WithInvalidator sets what tears the session down on a fatal failure.
func WithInvalidator(i Invalidator) Option {
	return func(cl *Client) { cl.invalidator = i }
}

// WithTracerProvider sets the span source. A nil provider keeps the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) {
		if tp != nil {
			cl.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithUserAgent overrides UserAgent().
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// New returns a Client. The base URL is resolved once from cfg.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:   ResolveBaseURL(cfg),
		timeout:   cfg.Timeout,
		cacheTTL:  cfg.CacheTTL,
		http:      http.DefaultClient,
		userAgent: UserAgent(),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = cache.DefaultTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNop(c.logger).WithPrefix("[api]")
	if c.cache == nil {
		c.cache = cache.New(cache.WithTTL(c.cacheTTL), cache.WithLogger(c.logger))
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// UserAgent identifies this build, preferring the VCS revision when embedded.
func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "Shopdash Data Access/" + Version + " (" + gitSHA + ")"
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Cache returns the response cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// Invalidate drops cached responses whose key contains substr. An empty
// substr clears the cache.
func (c *Client) Invalidate(substr string) int {
	n := c.cache.Invalidate(substr)
	c.logger.Debug("invalidated %d cached responses matching %q", n, substr)
	return n
}

type response struct {
	status  int
	body    []byte
	message string
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status <= 299
}

// Do performs a request and returns the JSON body, or an *Error.
//
// GET responses are served from cache while fresh. A 401 carrying a
// session-fatal message while a token was sent triggers one refresh and one
// retry. Failures are never retried otherwise.
func (c *Client) Do(ctx context.Context, path string, opts *RequestOptions) ([]byte, error) {
	var o RequestOptions
	if opts != nil {
		o = *opts
	}
	method := strings.ToUpper(o.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.baseURL + path

	ctx, span := c.tracer.Start(ctx, "api.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	payload, err := encodeBody(o.Body)
	if err != nil {
		return nil, c.fail(span, newError(url, method, 0, KindApplication, "Invalid request body", "", err))
	}

	var key string
	if method == http.MethodGet {
		key = cache.Key(method, path, payload)
		if o.SkipCache {
			c.logger.Trace("cache bypass: %s %s", method, path)
		} else if data, ok := c.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			c.logger.Trace("cache hit: %s %s", method, path)
			return data, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var token string
	if c.tokens != nil {
		token, _ = c.tokens.AccessToken(ctx)
	}

	resp, sendErr := c.send(ctx, method, url, payload, o.Headers, token)
	if sendErr != nil {
		return nil, c.fail(span, sendErr)
	}

	if !resp.ok() && token != "" && Classify(resp.status, resp.message).SessionFatal {
		if c.refresher == nil {
			return nil, c.fail(span, c.endSession(ctx, newError(url, method, resp.status, KindSessionFatal, resp.message, string(resp.body), nil)))
		}
		span.AddEvent("token.refresh")
		fresh, ok := c.refresher.Refresh(ctx, token)
		if !ok {
			if ctx.Err() != nil {
				return nil, c.fail(span, newError(url, method, 0, KindCanceled, CanceledMessage, "", ctx.Err()))
			}
			cause := errors.Newf("refresh after %d: %s", resp.status, resp.message)
			return nil, c.fail(span, c.endSession(ctx, newError(url, method, resp.status, KindRefreshFailure, SessionExpiredMessage, string(resp.body), cause)))
		}
		c.logger.Debug("retrying %s %s with renewed token", method, path)
		resp, sendErr = c.send(ctx, method, url, payload, o.Headers, fresh)
		if sendErr != nil {
			return nil, c.fail(span, sendErr)
		}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.status))

	if !resp.ok() {
		kind := KindApplication
		if Classify(resp.status, resp.message).SessionFatal {
			kind = KindSessionFatal
		}
		apiErr := newError(url, method, resp.status, kind, resp.message, string(resp.body), nil)
		if kind == KindSessionFatal {
			c.endSession(ctx, apiErr)
		}
		return nil, c.fail(span, apiErr)
	}

	data := resp.body
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("null")
	} else if !json.Valid(data) {
		return nil, c.fail(span, newError(url, method, resp.status, KindMalformed, MalformedMessage, preview(data), nil))
	}

	if method == http.MethodGet {
		c.cache.Set(key, data, c.cacheTTL)
	} else {
		for _, substr := range o.Invalidate {
			c.Invalidate(substr)
		}
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte, headers map[string]string, token string) (*response, *Error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return nil, newError(url, method, 0, KindNetwork, NetworkMessage, "", errors.Wrap(err, "create request"))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Trace("sending request: %s %s", method, url)
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, url, method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, url, method, err)
	}
	c.logger.Trace("response: %s %s -> %d in %v", method, url, resp.StatusCode, time.Since(started))

	r := &response{status: resp.StatusCode, body: raw}
	if !r.ok() {
		r.message = errorMessage(raw)
		c.logger.Debug("request failed: %s %s -> %d: %s", method, url, resp.StatusCode, preview(raw))
	}
	return r, nil
}

func (c *Client) transportError(ctx, callCtx context.Context, url, method string, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return newError(url, method, 0, KindCanceled, CanceledMessage, "", ctx.Err())
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return newError(url, method, 0, KindTimeout, TimeoutMessage, "", err)
	default:
		return newError(url, method, 0, KindNetwork, NetworkMessage, "", err)
	}
}

func (c *Client) endSession(ctx context.Context, err *Error) *Error {
	if c.invalidator != nil {
		c.invalidator.Invalidate(ctx, err)
	}
	return err
}

func (c *Client) fail(span trace.Span, err *Error) *Error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Kind.String())
	span.SetAttributes(attribute.String("error.kind", err.Kind.String()))
	if err.Status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", err.Status))
	}
	return err
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}

// errorMessage extracts {"error": "..."} from a failed response.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return FallbackMessage
	}
	return payload.Error
}

func preview(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + fmt.Sprintf("[truncated, total: %d bytes]", len(body))
	}
	return string(body)
}
