// Package config loads the front end's settings: YAML file over defaults,
// then environment variables, then Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SessionBackendCookie   = "cookie"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Features FeatureConfig  `yaml:"features"`
	// AddressLookupPerMinute caps postcode lookups per session. 0 disables.
	AddressLookupPerMinute int `yaml:"address_lookup_per_minute"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	SignedOutURL    string        `yaml:"signed_out_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SessionConfig struct {
	// Secrets sign session cookies. The first signs; all verify.
	Secrets      []string      `yaml:"secrets"`
	Backend      string        `yaml:"backend"`
	CookieSecure bool          `yaml:"cookie_secure"`
	TTL          time.Duration `yaml:"ttl"`
}

type UpstreamConfig struct {
	OrchestrationURL  string        `yaml:"orchestration_url"`
	ReferenceURL      string        `yaml:"reference_url"`
	ReferenceUsername string        `yaml:"reference_username"`
	ReferencePassword string        `yaml:"reference_password"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	StaticToken       string        `yaml:"static_token"`
}

type StorageConfig struct {
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeatureConfig struct {
	UploadLandings bool `yaml:"upload_landings"`
	CopyVoid       bool `yaml:"copy_void"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			SignedOutURL:    "/",
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:      SessionBackendCookie,
			CookieSecure: true,
			TTL:          24 * time.Hour,
		},
		Upstream: UpstreamConfig{
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
		},
		Logging:                LoggingConfig{Level: "info"},
		Features:               FeatureConfig{CopyVoid: true},
		AddressLookupPerMinute: 30,
	}
}

// Load reads path when it is non-empty and exists; a missing file leaves the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a boolean: %w", key, err))
				return
			}
			*dst = b
		}
	}

	num("SERVICE_PORT", &c.Server.Port)
	str("SIGNED_OUT_URL", &c.Server.SignedOutURL)
	if v, ok := lookup("SESSION_SECRET"); ok && strings.TrimSpace(v) != "" {
		c.Session.Secrets = splitList(v)
	}
	str("SESSION_BACKEND", &c.Session.Backend)
	flag("SESSION_COOKIE_SECURE", &c.Session.CookieSecure)
	str("REDIS_URL", &c.Storage.RedisURL)
	str("DATABASE_URL", &c.Storage.DatabaseURL)
	str("MMO_ECC_ORCHESTRATION_SVC_URL", &c.Upstream.OrchestrationURL)
	str("MMO_ECC_REFERENCE_SVC_URL", &c.Upstream.ReferenceURL)
	str("REFERENCE_SERVICE_USERNAME", &c.Upstream.ReferenceUsername)
	str("REFERENCE_SERVICE_PASSWORD", &c.Upstream.ReferencePassword)
	var timeoutMS int
	num("FETCH_TIMEOUT_MS", &timeoutMS)
	if timeoutMS > 0 {
		c.Upstream.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	num("UPSTREAM_RETRY_ATTEMPTS", &c.Upstream.RetryAttempts)
	str("UPSTREAM_STATIC_TOKEN", &c.Upstream.StaticToken)
	num("ADDRESS_LOOKUP_RATE_PER_MINUTE", &c.AddressLookupPerMinute)
	str("LOG_LEVEL", &c.Logging.Level)
	flag("ENABLE_UPLOAD_LANDINGS", &c.Features.UploadLandings)
	flag("ENABLE_COPY_VOID", &c.Features.CopyVoid)
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if len(c.Session.Secrets) == 0 {
		errs = append(errs, errors.New("session secret not configured (set SESSION_SECRET)"))
	}
	for _, s := range c.Session.Secrets {
		if len(s) < 32 {
			errs = append(errs, errors.New("session secrets must be at least 32 characters"))
			break
		}
	}
	switch c.Session.Backend {
	case SessionBackendCookie:
	case SessionBackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("redis session backend requires REDIS_URL"))
		}
	case SessionBackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres session backend requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}
	if c.Upstream.OrchestrationURL == "" {
		errs = append(errs, errors.New("orchestration service url not configured (set MMO_ECC_ORCHESTRATION_SVC_URL)"))
	}
	if c.Upstream.ReferenceURL == "" {
		errs = append(errs, errors.New("reference service url not configured (set MMO_ECC_REFERENCE_SVC_URL)"))
	}
	if c.Upstream.RetryAttempts < 1 {
		errs = append(errs, errors.New("upstream retry attempts must be at least 1"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Server.Port) }
