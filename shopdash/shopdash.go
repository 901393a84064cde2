// Package shopdash wires the cache, credential store, session lifecycle and
// request executor into a single long-lived client.
package shopdash

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopdash/dataaccess/api"
	"github.com/shopdash/dataaccess/cache"
	"github.com/shopdash/dataaccess/config"
	"github.com/shopdash/dataaccess/logger"
	"github.com/shopdash/dataaccess/session"
	"github.com/shopdash/dataaccess/store"
	"go.opentelemetry.io/otel/trace"
)

// Client is the data-access layer shared by every view of the application.
type Client struct {
	cfg         *config.Config
	logger      logger.Logger
	store       *store.Store
	sessions    *session.Manager
	refresher   *session.Refresher
	invalidator *session.Invalidator
	cache       *cache.Cache
	api         *api.Client
	redis       *redis.Client
}

type options struct {
	logger     logger.Logger
	redirector session.Redirector
	httpClient *http.Client
	tracer     trace.TracerProvider
	backend    store.Backend
	redis      *redis.Client
}

// Option configures New.
type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRedirector sets where the user is sent when the session ends.
func WithRedirector(r session.Redirector) Option {
	return func(o *options) { o.redirector = r }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithBackend bypasses the configured store backend.
func WithBackend(b store.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithRedisClient uses c for the redis backend instead of dialing store.redis_addr.
// The caller keeps ownership of c.
func WithRedisClient(c *redis.Client) Option {
	return func(o *options) { o.redis = c }
}

// New builds a Client from cfg. A nil cfg means config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewConsoleLogger(logger.ParseLevel(cfg.LogLevel, logger.LevelInfo))
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}

	c := &Client{cfg: cfg, logger: o.logger}

	backend := o.backend
	if backend == nil {
		backend = c.openBackend(ctx, o.redis)
	}

	c.store = store.New(backend, store.WithLogger(c.logger.WithPrefix("[store]")))
	c.sessions = session.NewManager(c.store,
		session.WithTTL(cfg.CredentialTTL.Std()),
		session.WithLogger(c.logger.WithPrefix("[session]")),
	)
	c.cache = cache.New(
		cache.WithTTL(cfg.Cache.TTL.Std()),
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithSweepDelay(cfg.Cache.SweepDelay.Std()),
		cache.WithLogger(c.logger.WithPrefix("[cache]")),
	)
	c.invalidator = session.NewInvalidator(c.sessions, o.redirector,
		session.WithLoginPath(cfg.LoginPath),
		session.WithHook(func(context.Context) { c.cache.Invalidate("") }),
		session.WithInvalidatorLogger(c.logger.WithPrefix("[session]")),
	)

	apiCfg := api.Config{
		BaseURL:        cfg.APIURL,
		Environment:    cfg.Environment,
		ProductionURL:  cfg.ProductionURL,
		DevelopmentURL: cfg.DevURL,
		Timeout:        cfg.RequestTimeout.Std(),
		CacheTTL:       cfg.Cache.TTL.Std(),
	}
	c.refresher = session.NewRefresher(c.sessions, api.ResolveBaseURL(apiCfg),
		session.WithHTTPClient(o.httpClient),
		session.WithRefreshTimeout(cfg.RequestTimeout.Std()),
		session.WithRefreshUserAgent(api.UserAgent()),
		session.WithRefreshLogger(c.logger.WithPrefix("[session]")),
	)
	apiOpts := []api.Option{
		api.WithHTTPClient(o.httpClient),
		api.WithLogger(c.logger),
		api.WithCache(c.cache),
		api.WithTokens(c.sessions),
		api.WithRefresher(c.refresher),
		api.WithInvalidator(c.invalidator),
	}
	if o.tracer != nil {
		apiOpts = append(apiOpts, api.WithTracerProvider(o.tracer))
	}
	c.api = api.New(apiCfg, apiOpts...)
	c.logger.Debug("data access ready: base=%s store=%s", c.api.BaseURL(), cfg.Store.Backend)
	return c, nil
}

func (c *Client) openBackend(ctx context.Context, rc *redis.Client) store.Backend {
	switch c.cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemoryBackend()
	case config.BackendFile:
		b, err := store.NewFileBackend(c.cfg.Store.Path)
		if err != nil {
			c.logger.Warn("credential store unavailable: %s", err)
			return nil
		}
		return b
	case config.BackendRedis:
		if rc == nil {
			rc = redis.NewClient(&redis.Options{Addr: c.cfg.Store.RedisAddr})
			c.redis = rc
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx).Err(); err != nil {
			c.logger.Warn("credential store unavailable: %s", err)
			return nil
		}
		return store.NewRedisBackend(rc, store.WithPrefix(c.cfg.Store.RedisPrefix))
	default:
		return nil
	}
}

// API returns the request executor, for use with api.Get and api.Post.
func (c *Client) API() *api.Client { return c.api }

// Sessions returns the credential pair manager.
func (c *Client) Sessions() *session.Manager { return c.sessions }

// Request performs a call. See api.Client.Do.
func (c *Client) Request(ctx context.Context, path string, opts *api.RequestOptions) ([]byte, error) {
	return c.api.Do(ctx, path, opts)
}

// Invalidate drops cached responses whose key contains substr.
func (c *Client) Invalidate(substr string) int {
	return c.api.Invalidate(substr)
}

// Login persists a freshly issued credential pair. Cached responses from any
// previous session are dropped.
func (c *Client) Login(ctx context.Context, accessToken string, info session.Info) error {
	if info.LastRefreshAt.IsZero() {
		info.LastRefreshAt = c.sessions.Now()
	}
	if err := c.sessions.Save(ctx, accessToken, info); err != nil {
		return errors.Wrap(err, "error saving session")
	}
	c.cache.Invalidate("")
	return nil
}

// Refresh renews the credential pair now.
func (c *Client) Refresh(ctx context.Context) (string, bool) {
	return c.refresher.Refresh(ctx, "")
}

// Logout clears the pair and every cached response without redirecting.
func (c *Client) Logout(ctx context.Context) error {
	c.cache.Invalidate("")
	if err := c.sessions.Clear(ctx); err != nil {
		return errors.Wrap(err, "error clearing session")
	}
	return nil
}

// Close stops the cache janitor and releases the redis connection it opened.
func (c *Client) Close() error {
	err := c.cache.Close()
	if c.redis != nil {
		err = errors.CombineErrors(err, c.redis.Close())
	}
	return err
}
