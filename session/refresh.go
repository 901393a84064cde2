package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/logger"
	"golang.org/x/sync/singleflight"
)

// RefreshPath is the renewal endpoint, relative to the API base URL.
const RefreshPath = "/api/session/refresh"

const defaultRefreshTimeout = 10 * time.Second

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    float64 `json:"expiresIn"`
	SessionID    string  `json:"sessionId"`
}

// Refresher exchanges the stored refresh token for a new pair. Concurrent
// callers share a single in-flight renewal.
type Refresher struct {
	sessions  *Manager
	baseURL   string
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    logger.Logger
	group     singleflight.Group
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient sets the client used for the renewal call.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) { r.client = c }
}

// WithRefreshTimeout bounds a single renewal call. Defaults to 10 seconds.
func WithRefreshTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.timeout = d }
}

// WithRefreshUserAgent sets the User-Agent header of the renewal call.
func WithRefreshUserAgent(ua string) RefresherOption {
	return func(r *Refresher) { r.userAgent = ua }
}

// WithRefreshLogger sets the logger.
func WithRefreshLogger(l logger.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// NewRefresher returns a Refresher posting to baseURL+RefreshPath.
func NewRefresher(sessions *Manager, baseURL string, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		sessions: sessions,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   http.DefaultClient,
		timeout:  defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger)
	return r
}

// Refresh renews the credential pair and returns the new access token.
//
// stale is the access token the caller was rejected with. If the stored token
// already differs from it, another caller has renewed in the meantime and the
// stored token is returned without a network call. Pass "" to force renewal.
//
// Any failure yields ("", false) and leaves the stored pair untouched.
func (r *Refresher) Refresh(ctx context.Context, stale string) (string, bool) {
	if token, ok := r.rotated(ctx, stale); ok {
		return token, true
	}
	ch := r.group.DoChan("refresh", func() (any, error) {
		// the shared renewal must outlive whichever caller started it
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if token, ok := r.rotated(rctx, stale); ok {
			return token, nil
		}
		return r.renew(rctx)
	})
	select {
	case <-ctx.Done():
		return "", false
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNoSession) {
				r.logger.Debug("skipping token refresh: %s", res.Err)
			} else {
				r.logger.Warn("token refresh failed: %s", res.Err)
			}
			return "", false
		}
		return res.Val.(string), true
	}
}

func (r *Refresher) rotated(ctx context.Context, stale string) (string, bool) {
	if stale == "" {
		return "", false
	}
	token, ok := r.sessions.AccessToken(ctx)
	if ok && token != stale {
		return token, true
	}
	return "", false
}

func (r *Refresher) renew(ctx context.Context) (string, error) {
	info, ok := r.sessions.Info(ctx)
	if !ok || info.RefreshToken == "" {
		return "", ErrNoSession
	}
	payload, err := json.Marshal(refreshRequest{RefreshToken: info.RefreshToken})
	if err != nil {
		return "", errors.Wrap(err, "encode refresh request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+RefreshPath, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "create refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	r.logger.Trace("refreshing session %s", info.SessionID)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "send refresh request")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read refresh response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Newf("refresh rejected with status %d", resp.StatusCode)
	}
	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.Wrap(err, "decode refresh response")
	}
	if out.AccessToken == "" {
		return "", errors.New("refresh response missing accessToken")
	}
	next := Info{
		RefreshToken:  out.RefreshToken,
		ExpiresIn:     time.Duration(out.ExpiresIn * float64(time.Second)),
		SessionID:     out.SessionID,
		LastRefreshAt: r.sessions.Now(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = info.RefreshToken
	}
	if next.SessionID == "" {
		next.SessionID = info.SessionID
	}
	if err := r.sessions.Save(ctx, out.AccessToken, next); err != nil {
		return "", err
	}
	r.logger.Debug("refreshed session %s", next.SessionID)
	return out.AccessToken, nil
}
