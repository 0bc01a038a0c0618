// Package config loads dynq's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/token"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "DYNQ_CONFIG"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the dynq configuration file.
type Config struct {
	// SchemaDir holds the CUE schema definitions.
	SchemaDir string `toml:"schema_dir"`

	// DataFile is the YAML fixture file loaded into the provider.
	DataFile string `toml:"data_file"`

	// Backend is "sqlite" or "memory".
	Backend string `toml:"backend"`

	// Database is the SQLite path; ":memory:" keeps it in memory.
	Database string `toml:"database"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"log_level"`

	// DatePrecision is the finest date part offered as a subtoken.
	DatePrecision string `toml:"date_precision"`

	TokenCacheSize int `toml:"token_cache_size"`

	Output Output `toml:"output"`

	// Auth is optional; without it every token is allowed.
	Auth *Auth `toml:"auth"`
}

// Output controls how the CLI renders results.
type Output struct {
	Format string `toml:"format"`
	Color  string `toml:"color"`
}

// Auth configures role-based token authorization.
type Auth struct {
	// Role is the role requests are checked as.
	Role     string       `toml:"role"`
	Rules    []token.Rule `toml:"rules"`
	Inherits []Inherit    `toml:"inherits"`
}

// Inherit makes Role inherit every rule of Parent.
type Inherit struct {
	Role   string `toml:"role"`
	Parent string `toml:"parent"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SchemaDir:      "schema",
		DataFile:       "data.yaml",
		Backend:        provider.BackendSQLite,
		Database:       ":memory:",
		LogLevel:       "info",
		DatePrecision:  "milliseconds",
		TokenCacheSize: token.DefaultCacheSize,
		Output: Output{
			Format: FormatText,
			Color:  ColorAuto,
		},
	}
}

// Load reads the configuration from path, or from $DYNQ_CONFIG when path
// is empty. With neither set it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration file at path over the defaults.
// Relative paths in the file are resolved against its directory.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	dir := filepath.Dir(path)
	cfg.SchemaDir = resolve(dir, cfg.SchemaDir)
	cfg.DataFile = resolve(dir, cfg.DataFile)
	if cfg.Database != ":memory:" && !strings.HasPrefix(cfg.Database, "file:") {
		cfg.Database = resolve(dir, cfg.Database)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case provider.BackendSQLite, provider.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("backend: unknown backend %q (want %s or %s)",
			c.Backend, provider.BackendSQLite, provider.BackendMemory))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := c.Precision(); err != nil {
		errs = append(errs, fmt.Errorf("date_precision: %w", err))
	}
	if c.TokenCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("token_cache_size: must be positive, got %d", c.TokenCacheSize))
	}
	switch c.Output.Format {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("output.format: unknown format %q (want text or json)", c.Output.Format))
	}
	switch c.Output.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		errs = append(errs, fmt.Errorf("output.color: unknown mode %q (want auto, always or never)", c.Output.Color))
	}
	if c.Auth != nil && c.Auth.Role == "" {
		errs = append(errs, errors.New("auth.role: required when [auth] is present"))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return l, nil
}

// Precision parses DatePrecision.
func (c *Config) Precision() (token.Precision, error) {
	return token.ParsePrecision(c.DatePrecision)
}

// Authorizer builds the token authorizer. Without [auth] it allows
// every token.
func (c *Config) Authorizer() (token.Authorizer, error) {
	if c.Auth == nil {
		return token.AllowAll{}, nil
	}
	inherits := make([][2]string, len(c.Auth.Inherits))
	for i, in := range c.Auth.Inherits {
		inherits[i] = [2]string{in.Role, in.Parent}
	}
	return token.NewCasbinAuthorizer(c.Auth.Role, c.Auth.Rules, inherits...)
}
