// Package config loads runtime configuration for the tracker server.
//
// Values come from config.yaml when present, overridden by environment
// variables with the REFUSE_ prefix (REFUSE_SERVER_ADDR, REFUSE_DATABASE_URL,
// and so on). Optional subsystems (MQTT mirror, SMTP delivery) are disabled
// when their address fields are left empty.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all runtime tunables for the tracker server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	LogLevel string         `mapstructure:"log_level"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

// RedisConfig holds the alert queue broker settings.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	QueueKey string `mapstructure:"queue_key"`
}

// AuthConfig holds token validation settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

// GatewayConfig bounds per-connection resources.
type GatewayConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes"`
	SendBufferSize  int           `mapstructure:"send_buffer_size"`
}

// DispatchConfig tunes the alert worker pool.
type DispatchConfig struct {
	Workers          int     `mapstructure:"workers"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	AlertThresholdKm float64 `mapstructure:"alert_threshold_km"`
}

// MQTTConfig holds the optional telemetry mirror settings. An empty BrokerURL
// disables the mirror.
type MQTTConfig struct {
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// SMTPConfig holds the outbound mail settings. An empty Host disables mail
// delivery (alerts are then logged only).
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Load reads configuration from config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("redis.queue_key", "refuse:alerts")
	v.SetDefault("auth.issuer", "refuse-tracker")
	v.SetDefault("auth.leeway", 2*time.Second)
	v.SetDefault("gateway.ping_interval", 30*time.Second)
	v.SetDefault("gateway.write_timeout", 10*time.Second)
	v.SetDefault("gateway.max_payload_bytes", 1<<20)
	v.SetDefault("gateway.send_buffer_size", 256)
	v.SetDefault("dispatch.workers", 2)
	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.alert_threshold_km", 1.0)
	v.SetDefault("mqtt.client_id", "refuse-tracker")
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("log_level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/refuse-tracker")

	v.SetEnvPrefix("REFUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: env-only deployments are supported.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields and normalizes bounds.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Dispatch.Workers < 1 {
		c.Dispatch.Workers = 1
	}
	if c.Dispatch.MaxAttempts < 1 {
		c.Dispatch.MaxAttempts = 1
	}
	if c.Dispatch.AlertThresholdKm <= 0 {
		c.Dispatch.AlertThresholdKm = 1.0
	}
	if c.Gateway.SendBufferSize < 1 {
		c.Gateway.SendBufferSize = 256
	}
	return nil
}
