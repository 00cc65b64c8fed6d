package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	AppEnv        string `envconfig:"APP_ENV" default:"development"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	SourceCacheTTL time.Duration `envconfig:"SOURCE_CACHE_TTL" default:"30s"`

	CreditNotesURL     string        `envconfig:"CREDIT_NOTES_URL"`
	CreditNotesToken   string        `envconfig:"CREDIT_NOTES_TOKEN"`
	CreditNotesTimeout time.Duration `envconfig:"CREDIT_NOTES_TIMEOUT" default:"10s"`

	// ServiceToken lets peers read /api/v1/credit-notes/raw without a user login.
	ServiceToken string `envconfig:"SERVICE_TOKEN"`

	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	LoginRateLimit int           `envconfig:"LOGIN_RATE_LIMIT" default:"5"`

	PlaceholderTransactionTypes bool   `envconfig:"PLACEHOLDER_TRANSACTION_TYPES" default:"false"`
	Timezone                    string `envconfig:"TIMEZONE" default:"Local"`
}

// Load reads configuration from the environment. Callers load any .env file
// beforehand.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ServiceToken = strings.TrimSpace(cfg.ServiceToken)
	cfg.CreditNotesToken = strings.TrimSpace(cfg.CreditNotesToken)
	if cfg.SourceCacheTTL <= 0 {
		cfg.SourceCacheTTL = 30 * time.Second
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	if cfg.LoginRateLimit < 1 {
		cfg.LoginRateLimit = 5
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves TIMEZONE; "Local" and "" map to the process zone.
func (c Config) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
