package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopdash/dataaccess/api"
	"github.com/shopdash/dataaccess/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	server    *httptest.Server
	flaky     atomic.Int32
	dir       string
	refreshes atomic.Int32
	watched   atomic.Int32
	lastBody  atomic.Value
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{dir: t.TempDir()}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == session.RefreshPath:
			e.refreshes.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "access-2", "refreshToken": "refresh-2", "expiresIn": 900})
		case r.URL.Path == "/api/flaky" && e.flaky.Add(1) < 3:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Try again later"}`))
		case r.Header.Get("Authorization") == "":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
		case r.URL.Path == "/api/watched":
			_ = json.NewEncoder(w).Encode(map[string]any{"tick": e.watched.Add(1)})
		case r.Method == http.MethodPost:
			var body bytes.Buffer
			_, _ = body.ReadFrom(r.Body)
			e.lastBody.Store(body.String())
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":7}`))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"path": r.URL.Path, "auth": r.Header.Get("Authorization")})
		}
	}))
	t.Cleanup(e.server.Close)
	t.Setenv("SHOPDASH_API_URL", e.server.URL)
	t.Setenv("SHOPDASH_STORE_BACKEND", "file")
	t.Setenv("SHOPDASH_STORE_PATH", filepath.Join(e.dir, "session"))
	return e
}

func (e *env) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), stdin, args...)
}

func (e *env) runContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(strings.NewReader(stdin), &out, &errOut)
	args = append(args, "--config", filepath.Join(e.dir, "none.yaml"), "--env-file", filepath.Join(e.dir, ".env"), "--no-telemetry")
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	a.close()
	return out.String(), errOut.String(), err
}

func TestLoginRequestLogout(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "refresh-1\n", "login", "--access-token", "access-1", "--session-id", "s1", "--expires-in", "15m")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in")

	out, _, err = e.run(t, "", "session")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "15m0s")

	out, _, err = e.run(t, "", "get", "/api/orders", "-H", "X-Store: 1")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "/api/orders", got["path"])
	assert.Equal(t, "Bearer access-1", got["auth"])

	out, _, err = e.run(t, "", "post", "/api/orders", "--data", `{"sku":"A-1"}`, "--invalidate", "/api/orders")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, out)
	assert.JSONEq(t, `{"sku":"A-1"}`, e.lastBody.Load().(string))

	out, _, err = e.run(t, "", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Session refreshed")
	assert.Equal(t, int32(1), e.refreshes.Load())

	out, _, err = e.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	out, _, err = e.run(t, "", "session")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestSessionEndedIsReported(t *testing.T) {
	e := newEnv(t)

	_, errOut, err := e.run(t, "", "get", "/api/orders")
	require.Error(t, err)
	assert.True(t, api.IsSessionEnded(err))
	assert.Contains(t, errOut, "Your session has ended")

	var buf bytes.Buffer
	renderError(&buf, err)
	assert.Contains(t, buf.String(), "Unauthorized")
	assert.Contains(t, buf.String(), "shopctl login")
}

func TestInvalidInput(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run(t, "", "post", "/api/orders", "--data", "{nope")
	assert.ErrorContains(t, err, "valid JSON")

	_, _, err = e.run(t, "", "get", "/api/orders", "-H", "no-colon")
	assert.ErrorContains(t, err, "invalid header")

	_, _, err = e.run(t, "", "login", "--access-token", "a")
	assert.ErrorContains(t, err, "refresh token is required")

	_, _, err = e.run(t, "", "refresh")
	assert.ErrorContains(t, err, "could not refresh")
}

func TestRenderRetryableHint(t *testing.T) {
	var buf bytes.Buffer
	renderError(&buf, &api.Error{Kind: api.KindTimeout, Message: api.TimeoutMessage})
	assert.Contains(t, buf.String(), api.TimeoutMessage)
	assert.Contains(t, buf.String(), "can be retried")
}

func TestWatchStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run(t, "refresh-1\n", "login", "--access-token", "access-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	out, _, err := e.runContext(t, ctx, "", "get", "/api/orders", "--watch", "50ms")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(out, "refreshing every 50ms"), 2)
	assert.Contains(t, out, `"path": "/api/orders"`)
}

func TestWatchFetchesEveryTick(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run(t, "refresh-1\n", "login", "--access-token", "access-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 280*time.Millisecond)
	defer cancel()
	out, _, err := e.runContext(t, ctx, "", "get", "/api/watched", "--watch", "50ms")
	require.NoError(t, err)

	hits := e.watched.Load()
	assert.GreaterOrEqual(t, hits, int32(3))
	assert.GreaterOrEqual(t, int(hits), strings.Count(out, "refreshing every 50ms"))
	assert.Contains(t, out, `"tick": 1`)
	assert.Contains(t, out, `"tick": 3`)
}

func TestGetRetries(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run(t, "refresh-1\n", "login", "--access-token", "access-1")
	require.NoError(t, err)

	_, _, err = e.run(t, "", "get", "/api/flaky")
	assert.ErrorContains(t, err, "Try again later")

	out, _, err := e.run(t, "", "get", "/api/flaky", "--retries", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"path": "/api/flaky"`)
	assert.Equal(t, int32(3), e.flaky.Load())
}
