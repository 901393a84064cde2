package api

import (
	"strings"
	"time"
)

const (
	DefaultProductionURL  = "https://dashboard.shopdash.app/api-proxy"
	DefaultDevelopmentURL = "http://localhost:5000"
)

// Config is the client's static configuration.
type Config struct {
	// BaseURL, when set, wins over the environment defaults.
	BaseURL        string
	Environment    string
	ProductionURL  string
	DevelopmentURL string
	Timeout        time.Duration
	CacheTTL       time.Duration
}

// ResolveBaseURL picks the base URL: an explicit override, else the
// production proxy when Environment is "production", else the local
// development server.
func ResolveBaseURL(cfg Config) string {
	var u string
	switch {
	case cfg.BaseURL != "":
		u = cfg.BaseURL
	case strings.EqualFold(cfg.Environment, "production"):
		u = cfg.ProductionURL
		if u == "" {
			u = DefaultProductionURL
		}
	default:
		u = cfg.DevelopmentURL
		if u == "" {
			u = DefaultDevelopmentURL
		}
	}
	return strings.TrimRight(u, "/")
}
