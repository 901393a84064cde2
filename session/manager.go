// Package session owns the persisted access/refresh credential pair: reading
// and replacing it, renewing it against the backend, and tearing it down when
// the server ends the session.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/logger"
	"github.com/shopdash/dataaccess/store"
)

// Keys under which the pair is persisted.
const (
	TokenKey = "token"
	InfoKey  = "sessionInfo"
)

// ErrNoSession is returned when a renewal is attempted without a stored session.
var ErrNoSession = errors.New("no active session")

// Info is the persisted session record that accompanies the access token.
type Info struct {
	RefreshToken  string        `msgpack:"refreshToken" json:"refreshToken"`
	ExpiresIn     time.Duration `msgpack:"expiresIn" json:"expiresIn"`
	SessionID     string        `msgpack:"sessionId" json:"sessionId"`
	LastRefreshAt time.Time     `msgpack:"lastRefreshAt" json:"lastRefreshAt"`
}

// Manager reads and replaces the credential pair. Writers hold an exclusive
// lock across both records, so readers never observe a token from one
// generation next to session info from another.
type Manager struct {
	store      *store.Store
	ttl        time.Duration
	now        func() time.Time
	logger     logger.Logger
	mu         sync.RWMutex
	generation atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the client-side lifetime of both persisted records.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager persisting into s.
func NewManager(s *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		ttl:   store.DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		m.ttl = store.DefaultTTL
	}
	m.logger = logger.OrNop(m.logger)
	return m
}

// AccessToken returns the current access token, if one is persisted and unexpired.
func (m *Manager) AccessToken(ctx context.Context) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokenLocked(ctx)
}

// Info returns the current session record.
func (m *Manager) Info(ctx context.Context) (*Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.infoLocked(ctx)
}

func (m *Manager) tokenLocked(ctx context.Context) (string, bool) {
	var token string
	found, err := m.store.Get(ctx, TokenKey, &token)
	if err != nil {
		m.logger.Warn("error reading access token: %s", err)
		return "", false
	}
	return token, found && token != ""
}

func (m *Manager) infoLocked(ctx context.Context) (*Info, bool) {
	var info Info
	found, err := m.store.Get(ctx, InfoKey, &info)
	if err != nil {
		m.logger.Warn("error reading session info: %s", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &info, true
}

// Save replaces the credential pair. If the second write fails the previous
// pair is restored, with its original expiry, before the error is returned.
func (m *Manager) Save(ctx context.Context, accessToken string, info Info) error {
	if accessToken == "" {
		return errors.New("session: empty access token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prevToken, _, err := m.store.Snapshot(ctx, TokenKey)
	if err != nil {
		return errors.Wrap(err, "session: read access token")
	}
	prevInfo, _, err := m.store.Snapshot(ctx, InfoKey)
	if err != nil {
		return errors.Wrap(err, "session: read session info")
	}

	if err := m.store.Set(ctx, InfoKey, &info, m.ttl); err != nil {
		return errors.Wrap(err, "session: save session info")
	}
	if err := m.store.Set(ctx, TokenKey, accessToken, m.ttl); err != nil {
		rollback := m.store.Restore(ctx, InfoKey, prevInfo)
		if prevToken != nil {
			rollback = errors.CombineErrors(rollback, m.store.Restore(ctx, TokenKey, prevToken))
		}
		if rollback != nil {
			m.logger.Error("error restoring previous session after failed save: %s", rollback)
		}
		return errors.Wrap(err, "session: save access token")
	}
	m.generation.Add(1)
	m.logger.Debug("saved session %s", info.SessionID)
	return nil
}

// Clear removes both records.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.store.Clear(ctx, TokenKey)
	err = errors.CombineErrors(err, m.store.Clear(ctx, InfoKey))
	return err
}

// Generation increases each time a new pair is saved.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.now()
}
