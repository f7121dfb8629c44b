package config

import (
	"fmt"
	"time"

	"github.com/iudanet/playerid/internal/models"
)

// ProviderCredentials описывает конфиденциальный OAuth клиент backend у провайдера
type ProviderCredentials struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Issuer       string   `mapstructure:"issuer"`
	Scopes       []string `mapstructure:"scopes"`
}

const minSecretLen = 16

// AppConfig описывает зарегистрированное приложение
type AppConfig struct {
	Secret      string `mapstructure:"secret"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig настройки эталонного backend
type ServerConfig struct {
	Apps            map[string]AppConfig           `mapstructure:"apps"`
	Providers       map[string]ProviderCredentials `mapstructure:"providers"`
	Log             LogConfig                      `mapstructure:"log"`
	Addr            string                         `mapstructure:"addr"`
	DBPath          string                         `mapstructure:"db_path"`
	RevocationKey   string                         `mapstructure:"revocation_key"`
	AccessTokenTTL  time.Duration                  `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration                  `mapstructure:"refresh_token_ttl"`
	ShutdownTimeout time.Duration                  `mapstructure:"shutdown_timeout"`
	RateLimit       float64                        `mapstructure:"rate_limit"`
	RateBurst       int                            `mapstructure:"rate_burst"`
	DevProviders    bool                           `mapstructure:"dev_providers"`
	ShowVersion     bool                           `mapstructure:"show_version"`
}

// LoadServer reads the server configuration.
func LoadServer(args []string) (*ServerConfig, error) {
	l := newLoader("playerid-server")
	v, fs := l.v, l.flags

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "playerid-server.db")
	v.SetDefault("revocation_key", "")
	v.SetDefault("access_token_ttl", time.Hour)
	v.SetDefault("refresh_token_ttl", 30*24*time.Hour)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("rate_limit", 20.0)
	v.SetDefault("rate_burst", 40)
	v.SetDefault("dev_providers", false)
	v.SetDefault("show_version", false)
	setLogDefaults(v)

	fs.Bool("version", false, "Show version information")
	fs.String("addr", ":8080", "Listen address")
	fs.String("db", "playerid-server.db", "Path to SQLite database")
	fs.Duration("access-ttl", time.Hour, "Access token lifetime")
	fs.Float64("rate-limit", 20, "Requests per second per client IP")
	fs.Int("rate-burst", 40, "Rate limiter burst")
	fs.Bool("dev-providers", false, "Accept unverified provider artifacts (development only)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")

	l.bind("show_version", "version")
	l.bind("addr", "addr")
	l.bind("db_path", "db")
	l.bind("access_token_ttl", "access-ttl")
	l.bind("rate_limit", "rate-limit")
	l.bind("rate_burst", "rate-burst")
	l.bind("dev_providers", "dev-providers")
	l.bind("log::level", "log-level")
	l.bind("log::format", "log-format")

	cfg := &ServerConfig{}
	if _, err := l.load(args, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры сервера
func (c *ServerConfig) Validate() error {
	if len(c.Apps) == 0 {
		return fmt.Errorf("at least one app must be configured")
	}
	// секрет приложения подписывает access token
	for id, app := range c.Apps {
		if len(app.Secret) < minSecretLen {
			return fmt.Errorf("app %q: secret must be at least %d bytes", id, minSecretLen)
		}
	}
	for name := range c.Providers {
		if _, err := models.ParseProvider(name); err != nil {
			return fmt.Errorf("providers: %w", err)
		}
	}
	if err := positive("access token ttl", c.AccessTokenTTL); err != nil {
		return err
	}
	if err := positive("refresh token ttl", c.RefreshTokenTTL); err != nil {
		return err
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate limit and burst must be positive")
	}
	return nil
}
