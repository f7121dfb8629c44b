package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/iudanet/playerid/internal/models"
)

// OAuthClient описывает публичный OAuth клиент приложения у провайдера
type OAuthClient struct {
	ClientID string   `mapstructure:"client_id"`
	Scopes   []string `mapstructure:"scopes"`
}

// ClientConfig настройки SDK и CLI клиента
type ClientConfig struct {
	Providers        map[string]OAuthClient `mapstructure:"providers"`
	Log              LogConfig              `mapstructure:"log"`
	ServerURL        string                 `mapstructure:"server_url"`
	DBPath           string                 `mapstructure:"db_path"`
	AppID            string                 `mapstructure:"app_id"`
	AppSecret        string                 `mapstructure:"app_secret"`
	Environment      string                 `mapstructure:"environment"`
	DeviceSecret     string                 `mapstructure:"device_secret"`
	DeviceSecretFile string                 `mapstructure:"device_secret_file"`
	Platform         string                 `mapstructure:"platform"`
	Version          string                 `mapstructure:"version"`
	Build            string                 `mapstructure:"build"`
	SafetyMargin     time.Duration          `mapstructure:"safety_margin"`
	HTTPTimeout      time.Duration          `mapstructure:"http_timeout"`
	ShowVersion      bool                   `mapstructure:"show_version"`
}

// LoadClient reads the client configuration and returns the positional
// arguments left after flags (the command and its arguments).
func LoadClient(args []string) (*ClientConfig, []string, error) {
	l := newLoader("playerid")
	v, fs := l.v, l.flags

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("db_path", "playerid-client.db")
	v.SetDefault("app_id", "")
	v.SetDefault("app_secret", "")
	v.SetDefault("environment", "production")
	v.SetDefault("device_secret", "")
	v.SetDefault("device_secret_file", "")
	v.SetDefault("platform", "")
	v.SetDefault("version", "")
	v.SetDefault("build", "")
	v.SetDefault("safety_margin", models.DefaultSafetyMargin)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("show_version", false)
	setLogDefaults(v)

	fs.Bool("version", false, "Show version information")
	fs.String("server", "http://localhost:8080", "Server URL")
	fs.String("db", "playerid-client.db", "Path to local database")
	fs.String("app-id", "", "Application ID")
	fs.String("env", "production", "Backend environment the app is registered in")
	fs.String("device-secret-file", "", "Path to file containing device secret")
	fs.Duration("safety-margin", models.DefaultSafetyMargin, "Refresh access token this long before expiry")
	fs.Duration("timeout", 30*time.Second, "HTTP request timeout")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-file", "", "Write logs to file with rotation")

	l.bind("show_version", "version")
	l.bind("server_url", "server")
	l.bind("db_path", "db")
	l.bind("app_id", "app-id")
	l.bind("environment", "env")
	l.bind("device_secret_file", "device-secret-file")
	l.bind("safety_margin", "safety-margin")
	l.bind("http_timeout", "timeout")
	l.bind("log::level", "log-level")
	l.bind("log::file", "log-file")

	cfg := &ClientConfig{}
	rest, err := l.load(args, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

// Validate проверяет значения, без которых клиент не может работать
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.ServerURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	for name := range c.Providers {
		if _, err := models.ParseProvider(name); err != nil {
			return fmt.Errorf("providers: %w", err)
		}
	}
	if err := positive("safety margin", c.SafetyMargin); err != nil {
		return err
	}
	return positive("http timeout", c.HTTPTimeout)
}
