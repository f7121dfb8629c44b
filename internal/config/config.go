// Package config загружает настройки клиента и сервера.
// Приоритет: флаги командной строки > переменные окружения (PLAYERID_*) > файл конфигурации > значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable, e.g. PLAYERID_SERVER_URL.
const EnvPrefix = "PLAYERID"

const keyDelimiter = "::"

// LogConfig описывает вывод логов
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setLogDefaults(v *viper.Viper) {
	v.SetDefault("log::level", "info")
	v.SetDefault("log::format", "text")
	v.SetDefault("log::file", "")
	v.SetDefault("log::max_size_mb", 10)
	v.SetDefault("log::max_backups", 3)
	v.SetDefault("log::max_age_days", 28)
	v.SetDefault("log::compress", false)
}

// loader собирает viper поверх набора флагов
type loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
	// binds: ключ конфигурации -> имя флага
	binds map[string]string
}

func newLoader(name string) *loader {
	// идентификаторы приложений содержат точки (com.example.game),
	// поэтому вложенные ключи разделяются "::"
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_", ".", "_", "-", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to config file (yaml, json or toml)")
	fs.String("env-file", ".env", "path to .env file")

	return &loader{v: v, flags: fs, binds: make(map[string]string)}
}

func (l *loader) bind(key, flag string) {
	l.binds[key] = flag
}

// load разбирает args и читает все источники в target
func (l *loader) load(args []string, target any) ([]string, error) {
	if err := l.flags.Parse(args); err != nil {
		return nil, err
	}

	// .env только дополняет окружение, не перезаписывая заданные переменные
	envFile, _ := l.flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	configFile, _ := l.flags.GetString("config")
	if configFile == "" {
		configFile = l.v.GetString("config")
	}
	if configFile != "" {
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, name := range l.binds {
		if err := l.v.BindPFlag(key, l.flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if err := l.v.Unmarshal(target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return l.flags.Args(), nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}
