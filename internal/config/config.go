// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/storefront-relay/config.toml",
	"configs/config.toml",
}

// Relay routes served by the handler package. The metrics path may not shadow them.
const (
	ExportRoute   = "/api/categories/export"
	WishlistRoute = "/api/wishlist/clear"
	HealthzRoute  = "/healthz"
	StatusRoute   = "/relay/status"
)

// Defaults for the relayed endpoints.
const (
	DefaultExportUpstreamPath   = "/categories/export"
	DefaultExportFilename       = "categories.xlsx"
	DefaultExportContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	DefaultWishlistUpstreamPath = "/api/wishlist/clear"
	DefaultWishlistMethod       = http.MethodDelete
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL string `kong:"help='Backend base URL (overrides config).',env='BACKEND_URL'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Backend  BackendConfig  `toml:"backend"`
	Export   ExportConfig   `toml:"export"`
	Wishlist WishlistConfig `toml:"wishlist"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig holds the storefront backend connection settings.
type BackendConfig struct {
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// ExportConfig controls the categories export relay.
type ExportConfig struct {
	UpstreamPath string `toml:"upstream_path"`
	Filename     string `toml:"filename"`
	ContentType  string `toml:"content_type"`
}

// WishlistConfig controls the wishlist clear relay.
type WishlistConfig struct {
	UpstreamPath string `toml:"upstream_path"`
	Method       string `toml:"method"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/storefront-relay/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendURL != "" {
		c.Backend.BaseURL = cli.BackendURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// fieldRules pairs a dotted config key with the rules its value must satisfy.
type fieldRules struct {
	key   string
	value any
	rules []validation.Rule
}

func (c *Config) validate() error {
	rl := c.Server.RateLimit
	checks := []fieldRules{
		{"backend.base_url", c.Backend.BaseURL, []validation.Rule{validation.Required, validation.By(validateBaseURL)}},
		{"server.port", c.Server.Port, []validation.Rule{validation.Min(0), validation.Max(65535)}},
		{"server.body_max_bytes", c.Server.BodyMaxBytes, []validation.Rule{validation.Min(int64(0))}},
		{"server.rate_limit.requests_per_second", rl.RequestsPerSecond, []validation.Rule{
			validation.When(rl.Enabled, validation.Required, validation.Min(0.0).Exclusive()),
		}},
		{"backend.timeout_seconds", c.Backend.TimeoutSeconds, []validation.Rule{validation.Min(0)}},
		{"backend.idle_connections", c.Backend.IdleConnections, []validation.Rule{validation.Min(0)}},
		{"export.upstream_path", c.Export.UpstreamPath, []validation.Rule{validation.By(validateRequestPath)}},
		{"export.filename", c.Export.Filename, []validation.Rule{validation.Match(filenamePattern)}},
		{"wishlist.upstream_path", c.Wishlist.UpstreamPath, []validation.Rule{validation.By(validateRequestPath)}},
		{"wishlist.method", strings.ToUpper(c.Wishlist.Method), []validation.Rule{
			validation.In(http.MethodDelete, http.MethodPost, http.MethodPut, http.MethodPatch).
				Error("must be one of: DELETE, POST, PUT, PATCH"),
		}},
		{"log.level", strings.ToLower(c.Log.Level), []validation.Rule{
			validation.In("debug", "info", "warn", "error").Error("must be one of: debug, info, warn, error"),
		}},
		{"log.format", strings.ToLower(c.Log.Format), []validation.Rule{
			validation.In("json", "text").Error("must be one of: json, text"),
		}},
		{"metrics.path", c.Metrics.Path, []validation.Rule{
			validation.When(c.Metrics.Enabled, validation.By(validateMetricsPath)),
		}},
	}

	for _, fr := range checks {
		if err := validation.Validate(fr.value, fr.rules...); err != nil {
			return fmt.Errorf("%s: %w", fr.key, err)
		}
	}
	return nil
}

func validateBaseURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https; got %q", s)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host; got %q", s)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("must not carry a query or fragment")
	}
	return nil
}

func validateRequestPath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if s[0] != '/' {
		return fmt.Errorf("must start with '/'; got %q", s)
	}
	return nil
}

func validateMetricsPath(value any) error {
	p, _ := value.(string)
	if p == "" {
		return nil
	}
	if p[0] != '/' {
		return fmt.Errorf("must start with '/'; got %q", p)
	}
	for _, reserved := range []string{ExportRoute, WishlistRoute, HealthzRoute, StatusRoute} {
		if p == reserved || strings.HasPrefix(p, reserved+"/") {
			return fmt.Errorf("%q conflicts with reserved route %q", p, reserved)
		}
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 30
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Export.UpstreamPath == "" {
		c.Export.UpstreamPath = DefaultExportUpstreamPath
	}
	if c.Export.Filename == "" {
		c.Export.Filename = DefaultExportFilename
	}
	if c.Export.ContentType == "" {
		c.Export.ContentType = DefaultExportContentType
	}
	if c.Wishlist.UpstreamPath == "" {
		c.Wishlist.UpstreamPath = DefaultWishlistUpstreamPath
	}
	c.Wishlist.Method = strings.ToUpper(c.Wishlist.Method)
	if c.Wishlist.Method == "" {
		c.Wishlist.Method = DefaultWishlistMethod
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
