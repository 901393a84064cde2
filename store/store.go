// Package store persists small values with a client-side absolute expiration.
//
// A Store wraps every value in an envelope carrying the instant it stops being
// valid. Reads past that instant delete the key and report it absent, so an
// expired credential is never handed back, even within the same process.
//
// A Store built on a nil Backend models an environment without persistent
// storage: reads are absent and writes are silently dropped.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/logger"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL is the lifetime applied to persisted credentials.
const DefaultTTL = 5 * 24 * time.Hour

// Backend is raw key/value storage. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Load returns the stored bytes for key and whether the key exists.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	// Save writes data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

type record struct {
	Value     []byte `msgpack:"v"`
	ExpiresAt int64  `msgpack:"e"`
}

type config struct {
	now    func() time.Time
	logger logger.Logger
}

// Option configures a Store.
type Option func(*config)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLogger sets the logger used to report discarded entries.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Store is an expiring key/value store over a Backend.
type Store struct {
	backend Backend
	cfg     config
}

// New returns a Store over backend. backend may be nil.
func New(backend Backend, opts ...Option) *Store {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = logger.OrNop(cfg.logger)
	return &Store{backend: backend, cfg: cfg}
}

// Available reports whether writes are actually persisted.
func (s *Store) Available() bool {
	return s != nil && s.backend != nil
}

// Set stores value under key until now+ttl.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	if ttl <= 0 {
		return errors.Newf("store: ttl must be positive, got %s", ttl)
	}
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "store: encode %q", key)
	}
	envelope, err := msgpack.Marshal(&record{
		Value:     raw,
		ExpiresAt: s.cfg.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return errors.Wrapf(err, "store: encode envelope %q", key)
	}
	if err := s.backend.Save(ctx, key, envelope); err != nil {
		return errors.Wrapf(err, "store: save %q", key)
	}
	return nil
}

// Get decodes the value stored under key into out. It returns false when the
// key is missing, expired or unreadable; the latter two are deleted.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	data, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "store: load %q", key)
	}
	if !ok {
		return false, nil
	}
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		s.cfg.logger.Warn("discarding unreadable entry %q: %s", key, err)
		return false, s.discard(ctx, key)
	}
	if s.cfg.now().UnixMilli() >= rec.ExpiresAt {
		s.cfg.logger.Debug("entry %q expired at %s", key, time.UnixMilli(rec.ExpiresAt).UTC().Format(time.RFC3339))
		return false, s.discard(ctx, key)
	}
	if err := msgpack.Unmarshal(rec.Value, out); err != nil {
		s.cfg.logger.Warn("discarding undecodable entry %q: %s", key, err)
		return false, s.discard(ctx, key)
	}
	return true, nil
}

// Clear removes key.
func (s *Store) Clear(ctx context.Context, key string) error {
	if !s.Available() {
		return nil
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "store: delete %q", key)
	}
	return nil
}

// Snapshot returns the stored envelope for key as is, expiry included.
func (s *Store) Snapshot(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.Available() {
		return nil, false, nil
	}
	data, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "store: load %q", key)
	}
	return data, ok, nil
}

// Restore writes back an envelope taken with Snapshot. A nil envelope
// removes key.
func (s *Store) Restore(ctx context.Context, key string, envelope []byte) error {
	if envelope == nil {
		return s.Clear(ctx, key)
	}
	if !s.Available() {
		return nil
	}
	if err := s.backend.Save(ctx, key, envelope); err != nil {
		return errors.Wrapf(err, "store: restore %q", key)
	}
	return nil
}

func (s *Store) discard(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "store: delete %q", key)
	}
	return nil
}
