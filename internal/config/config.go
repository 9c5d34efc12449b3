package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tool service settings.
type Config struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	DatabaseDSN     string        `mapstructure:"database_dsn"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	JWTAudience     string        `mapstructure:"jwt_audience"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ToolHeaders     []Header      `mapstructure:"tool_headers"`
}

// Header is one outbound header for the comparison tool. Headers are kept as
// a list because viper lower-cases map keys.
type Header struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

// HeaderMap returns ToolHeaders as a map, or nil when none are configured.
func (c *Config) HeaderMap() map[string]string {
	if len(c.ToolHeaders) == 0 {
		return nil
	}
	headers := make(map[string]string, len(c.ToolHeaders))
	for _, h := range c.ToolHeaders {
		headers[h.Name] = h.Value
	}
	return headers
}

// Load reads configuration from the environment and, if configFile is not
// empty, from a YAML file. Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_dsn", "host=postgres user=postgres password=postgres dbname=visualcompare port=5432 sslmode=disable")
	v.SetDefault("redis_addr", "redis:6379")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_audience", "")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("tool_headers", []Header{})
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("listen_addr is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("shutdown_timeout must be positive")
	}
	for _, h := range cfg.ToolHeaders {
		if h.Name == "" {
			return nil, errors.New("tool_headers entries need a name")
		}
	}
	return &cfg, nil
}
