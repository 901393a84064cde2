package session

import (
	"context"
	"sync"

	"github.com/shopdash/dataaccess/logger"
)

// DefaultLoginPath is where the user is sent after the session ends.
const DefaultLoginPath = "/login"

// Redirector navigates the application to location.
type Redirector interface {
	Redirect(ctx context.Context, location string)
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(ctx context.Context, location string)

func (f RedirectFunc) Redirect(ctx context.Context, location string) {
	f(ctx, location)
}

// Invalidator ends the session: it clears the persisted pair and redirects
// to the login entry point. It fires at most once per saved session, so a
// burst of session-fatal responses results in a single redirect.
type Invalidator struct {
	sessions   *Manager
	redirector Redirector
	location   string
	hooks      []func(ctx context.Context)
	logger     logger.Logger

	mu       sync.Mutex
	fired    bool
	firedGen uint64
}

// InvalidatorOption configures an Invalidator.
type InvalidatorOption func(*Invalidator)

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(location string) InvalidatorOption {
	return func(i *Invalidator) { i.location = location }
}

// WithHook registers fn to run after the pair is cleared and before redirecting.
func WithHook(fn func(ctx context.Context)) InvalidatorOption {
	return func(i *Invalidator) { i.hooks = append(i.hooks, fn) }
}

// WithInvalidatorLogger sets the logger.
func WithInvalidatorLogger(l logger.Logger) InvalidatorOption {
	return func(i *Invalidator) { i.logger = l }
}

// NewInvalidator returns an Invalidator. redirector may be nil, in which
// case teardown is only logged.
func NewInvalidator(sessions *Manager, redirector Redirector, opts ...InvalidatorOption) *Invalidator {
	i := &Invalidator{
		sessions:   sessions,
		redirector: redirector,
		location:   DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logger.OrNop(i.logger)
	return i
}

// Invalidate tears the session down. It returns false when the current
// session was already torn down.
func (i *Invalidator) Invalidate(ctx context.Context, cause error) bool {
	i.mu.Lock()
	gen := i.sessions.Generation()
	if i.fired && i.firedGen == gen {
		i.mu.Unlock()
		return false
	}
	i.fired, i.firedGen = true, gen
	if err := i.sessions.Clear(ctx); err != nil {
		i.logger.Error("error clearing session: %s", err)
	}
	i.mu.Unlock()

	i.logger.Info("session ended: %v", cause)
	for _, hook := range i.hooks {
		hook(ctx)
	}
	if i.redirector != nil {
		i.redirector.Redirect(ctx, i.location)
	}
	return true
}

// Location returns the login entry point.
func (i *Invalidator) Location() string {
	return i.location
}
