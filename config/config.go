package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHOPDASH_"

// Store backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Duration is a time.Duration written as "10s", "5m" or "5d" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ParseDuration accepts Go durations plus day and week units.
func ParseDuration(s string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return d, nil
}

type CacheConfig struct {
	TTL        Duration `yaml:"ttl"`
	MaxSize    int      `yaml:"max_size"`
	SweepDelay Duration `yaml:"sweep_delay"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// Config is the full module configuration.
type Config struct {
	APIURL         string          `yaml:"api_url"`
	Environment    string          `yaml:"environment"`
	ProductionURL  string          `yaml:"production_url"`
	DevURL         string          `yaml:"dev_url"`
	RequestTimeout Duration        `yaml:"request_timeout"`
	CredentialTTL  Duration        `yaml:"credential_ttl"`
	LoginPath      string          `yaml:"login_path"`
	LogLevel       string          `yaml:"log_level"`
	Cache          CacheConfig     `yaml:"cache"`
	Store          StoreConfig     `yaml:"store"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Environment:    "development",
		RequestTimeout: Duration(10 * time.Second),
		CredentialTTL:  Duration(5 * 24 * time.Hour),
		LoginPath:      "/login",
		LogLevel:       "info",
		Cache: CacheConfig{
			TTL:        Duration(5 * time.Minute),
			MaxSize:    100,
			SweepDelay: Duration(time.Second),
		},
		Store: StoreConfig{
			Backend:     BackendFile,
			Path:        "~/.config/shopdash/session",
			RedisPrefix: "shopdash:store",
		},
	}
}

// Production reports whether the production proxy is targeted.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads the YAML file at path, then the dotenv file at envFile, then the
// process environment; later sources win. Either path may be empty or missing.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrapf(err, "error reading config %s", path)
		default:
			if err := yaml.Unmarshal(buf, cfg); err != nil {
				return nil, errors.Wrapf(err, "error parsing config %s", path)
			}
		}
	}
	dotenv := map[string]string{}
	if envFile != "" {
		lines, err := ParseEnvFile(envFile)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading env file %s", envFile)
		}
		for _, line := range lines {
			dotenv[line.Key] = line.Val
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"API_URL":        &c.APIURL,
		"ENVIRONMENT":    &c.Environment,
		"PRODUCTION_URL": &c.ProductionURL,
		"DEV_URL":        &c.DevURL,
		"LOGIN_PATH":     &c.LoginPath,
		"LOG_LEVEL":      &c.LogLevel,
		"STORE_BACKEND":  &c.Store.Backend,
		"STORE_PATH":     &c.Store.Path,
		"REDIS_ADDR":     &c.Store.RedisAddr,
		"REDIS_PREFIX":   &c.Store.RedisPrefix,
		"OTLP_URL":       &c.Telemetry.Endpoint,
		"OTLP_TOKEN":     &c.Telemetry.Token,
	}
	for name, dst := range str {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	durations := map[string]*Duration{
		"REQUEST_TIMEOUT":   &c.RequestTimeout,
		"CREDENTIAL_TTL":    &c.CredentialTTL,
		"CACHE_TTL":         &c.Cache.TTL,
		"CACHE_SWEEP_DELAY": &c.Cache.SweepDelay,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "%s%s", EnvPrefix, name)
			}
			*dst = Duration(d)
		}
	}
	if v, ok := lookup(EnvPrefix + "CACHE_MAX_SIZE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%sCACHE_MAX_SIZE", EnvPrefix)
		}
		c.Cache.MaxSize = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendNone, BackendMemory, BackendFile:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	default:
		return errors.Newf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendFile && c.Store.Path == "" {
		return errors.New("store.path is required for the file backend")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.CredentialTTL <= 0 {
		return errors.New("credential_ttl must be positive")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.Cache.MaxSize <= 0 {
		return errors.New("cache.max_size must be positive")
	}
	return nil
}
