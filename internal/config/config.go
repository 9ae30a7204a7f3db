// Package config holds the bridge's runtime configuration (§10.3),
// grounded on the teacher's pkg/config (the Config struct + NewLogger
// shape) layered with viper environment-variable overrides the way
// EdgxCloud-EdgeFlow's internal/config layers its own.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "CUBEAST_CONNECT"

// Config holds the bridge's runtime configuration.
type Config struct {
	Bind                    string
	AllowAnyOrigin          bool
	AllowListFile           string
	LogLevel                logrus.Level
	ConnectTimeout          time.Duration
	ServiceDiscoveryRetries int
	ServiceDiscoveryBackoff time.Duration
}

// DefaultConfig returns the bridge's default configuration (§6.1's
// default bind address, §4.1's retry contract).
func DefaultConfig() *Config {
	return &Config{
		Bind:                    "127.0.0.1:17430",
		LogLevel:                logrus.InfoLevel,
		ConnectTimeout:          15 * time.Second,
		ServiceDiscoveryRetries: 3,
		ServiceDiscoveryBackoff: time.Second,
	}
}

// Load layers environment-variable overrides (CUBEAST_CONNECT_BIND,
// CUBEAST_CONNECT_ALLOW_ANY_ORIGIN, ...) under DefaultConfig, the way
// cmd/connectd's cobra flags then layer on top again.
func Load() (*Config, error) {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("bind", d.Bind)
	v.SetDefault("allow_any_origin", d.AllowAnyOrigin)
	v.SetDefault("allow_list_file", d.AllowListFile)
	v.SetDefault("log_level", d.LogLevel.String())
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("service_discovery_retries", d.ServiceDiscoveryRetries)
	v.SetDefault("service_discovery_backoff", d.ServiceDiscoveryBackoff)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	level, err := logrus.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid log level %q: %w", v.GetString("log_level"), err)
	}

	return &Config{
		Bind:                    v.GetString("bind"),
		AllowAnyOrigin:          v.GetBool("allow_any_origin"),
		AllowListFile:           v.GetString("allow_list_file"),
		LogLevel:                level,
		ConnectTimeout:          v.GetDuration("connect_timeout"),
		ServiceDiscoveryRetries: v.GetInt("service_discovery_retries"),
		ServiceDiscoveryBackoff: v.GetDuration("service_discovery_backoff"),
	}, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
