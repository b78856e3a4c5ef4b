package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Theming  ThemingConfig  `mapstructure:"theming"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`

	v *viper.Viper
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ThemingConfig struct {
	Provider        string        `mapstructure:"provider"`
	RatePerMinute   int           `mapstructure:"rate_per_minute"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ThemingTimeout time.Duration `mapstructure:"theming_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ProviderOpenAI  = "openai"
	ProviderKeyword = "keyword"
)

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "concern_cloud")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "concern-cloud.db")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 4000)
	v.SetDefault("openai.temperature", 0.4)
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("theming.provider", ProviderOpenAI)
	v.SetDefault("theming.rate_per_minute", 6)
	v.SetDefault("theming.burst", 2)
	v.SetDefault("theming.breaker_failures", 5)
	v.SetDefault("theming.breaker_timeout", 30*time.Second)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.theming_timeout", 90*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads path (YAML) over the defaults. An empty or missing path
// leaves defaults and environment variables in effect.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// CONCERN_CLOUD_SERVER_ADDR overrides server.addr and so on.
	v.SetEnvPrefix("concern_cloud")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}
	config.v = v
	return config, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Unprefixed variables used by hosting platforms.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	return &config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Theming.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.api_key (or OPENAI_API_KEY) is required for the openai provider")
		}
	case ProviderKeyword:
	default:
		return fmt.Errorf("unknown theming provider %q", c.Theming.Provider)
	}
	if c.Theming.RatePerMinute <= 0 || c.Theming.Burst <= 0 {
		return errors.New("theming.rate_per_minute and theming.burst must be positive")
	}
	return nil
}

// WatchConfig re-reads the config file on change and hands the new values to
// onChange. Invalid reloads are logged and ignored.
func WatchConfig(c *Config, logger *zap.Logger, onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(c.v.ConfigFileUsed()); err != nil {
		logger.Debug("config file absent, not watching", zap.String("path", c.v.ConfigFileUsed()))
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.v)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err), zap.String("file", e.Name))
			return
		}
		if err := next.Validate(); err != nil {
			logger.Error("Invalid configuration after reload", zap.Error(err))
			return
		}
		next.v = c.v
		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		onChange(next)
	})
	c.v.WatchConfig()
}
