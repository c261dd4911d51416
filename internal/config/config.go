// Package config loads the server configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory. Variables already set in the process
// win over the file, so a deployment can always override a checked-in
// default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/subosito/gotenv"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Env     string `env:"SUMDAY_ENV" envDefault:"development"`
	Port    int    `env:"PORT" envDefault:"5555"`
	BaseURL string `env:"SUMDAY_BASE_URL" envDefault:"http://localhost:5555"`

	SecretKey   string `env:"SECRET_KEY"`
	DatabaseURL string `env:"SUMDAY_DATABASE_URL" envDefault:"sqlite://data/sumday.db"`

	Auth0Domain       string `env:"AUTH0_DOMAIN"`
	Auth0ClientID     string `env:"AUTH0_CLIENT_ID"`
	Auth0ClientSecret string `env:"AUTH0_CLIENT_SECRET"`
	// Empty means BaseURL + "/callback".
	Auth0CallbackURL string `env:"AUTH0_CALLBACK_URL"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	UserCacheTTL time.Duration `env:"USER_CACHE_TTL" envDefault:"30s"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	// Empty picks debug in development and info otherwise.
	LogLevel string `env:"LOG_LEVEL"`

	OTelEndpoint string `env:"SUMDAY_OTEL_ENDPOINT"`
}

// Load reads envFile (if it exists) into the environment and parses Config.
// Pass "" to skip the file. The result is not validated; call Validate for
// commands that need the full server configuration.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Auth0CallbackURL == "" {
		cfg.Auth0CallbackURL = cfg.BaseURL + "/callback"
	}
	return &cfg, nil
}

// Validate checks the settings the HTTP server can't start without.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SecretKey) < 16 {
		errs = append(errs, errors.New("SECRET_KEY must be at least 16 characters"))
	}
	if c.Auth0Domain == "" {
		errs = append(errs, errors.New("AUTH0_DOMAIN is required"))
	}
	if c.Auth0ClientID == "" {
		errs = append(errs, errors.New("AUTH0_CLIENT_ID is required"))
	}
	if c.Auth0ClientSecret == "" {
		errs = append(errs, errors.New("AUTH0_CLIENT_SECRET is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SUMDAY_BASE_URL %q is not an absolute URL", c.BaseURL))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.UserCacheTTL < 0 {
		errs = append(errs, errors.New("USER_CACHE_TTL must not be negative"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether SUMDAY_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Level resolves LOG_LEVEL, defaulting by environment.
func (c *Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		if c.IsProduction() {
			return slog.LevelInfo, nil
		}
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return lvl, nil
}
