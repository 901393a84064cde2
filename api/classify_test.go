package api

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status       int
		message      string
		retryable    bool
		sessionFatal bool
	}{
		{0, "", true, false},
		{http.StatusRequestTimeout, "", true, false},
		{http.StatusTooManyRequests, "slow down", true, false},
		{http.StatusBadGateway, "", true, false},
		{http.StatusServiceUnavailable, "", true, false},
		{http.StatusGatewayTimeout, "", true, false},
		{http.StatusInternalServerError, "boom", false, false},
		{http.StatusBadRequest, "bad", false, false},
		{http.StatusUnauthorized, "Token expired", false, true},
		{http.StatusUnauthorized, "INVALID TOKEN provided", false, true},
		{http.StatusUnauthorized, "Inactive session", false, true},
		{http.StatusUnauthorized, "Unauthorized", false, true},
		{http.StatusUnauthorized, "Insufficient permissions", false, false},
		{http.StatusUnauthorized, "", false, false},
		{http.StatusForbidden, "Unauthorized", false, false},
	}
	for _, tt := range tests {
		c := Classify(tt.status, tt.message)
		assert.Equal(t, tt.retryable, c.Retryable, "%d %q retryable", tt.status, tt.message)
		assert.Equal(t, tt.sessionFatal, c.SessionFatal, "%d %q session fatal", tt.status, tt.message)
	}
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTimeout}).Retryable())
	assert.True(t, (&Error{Kind: KindNetwork}).Retryable())
	assert.True(t, (&Error{Kind: KindApplication, Status: http.StatusBadGateway}).Retryable())
	assert.False(t, (&Error{Kind: KindApplication, Status: http.StatusNotFound}).Retryable())
	assert.False(t, (&Error{Kind: KindSessionFatal, Status: http.StatusUnauthorized}).Retryable())
	assert.False(t, (&Error{Kind: KindCanceled}).Retryable())
}

func TestErrorUnwrapAndKind(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := errors.Wrap(newError("http://x/y", "GET", 0, KindNetwork, NetworkMessage, "", cause), "load orders")

	assert.ErrorIs(t, err, cause)
	k, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindNetwork, k)
	assert.False(t, IsTimeout(err))
	assert.Contains(t, err.Error(), NetworkMessage)

	_, ok = KindOf(errors.New("other"))
	assert.False(t, ok)
	assert.Equal(t, FallbackMessage, (&Error{}).Error())
	assert.Equal(t, "refresh_failure", KindRefreshFailure.String())
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"development default", Config{}, DefaultDevelopmentURL},
		{"production default", Config{Environment: "production"}, DefaultProductionURL},
		{"production case insensitive", Config{Environment: "Production"}, DefaultProductionURL},
		{"production configured", Config{Environment: "production", ProductionURL: "https://proxy.example.com/"}, "https://proxy.example.com"},
		{"development configured", Config{Environment: "staging", DevelopmentURL: "http://127.0.0.1:9000"}, "http://127.0.0.1:9000"},
		{"override wins", Config{BaseURL: "https://api.example.com//", Environment: "production"}, "https://api.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveBaseURL(tt.cfg))
		})
	}
}
