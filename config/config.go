package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Netatmo  NetatmoConfig  `json:"netatmo"`
	Webhook  WebhookConfig  `json:"webhook"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey string `json:"api_key"`
}

// NetatmoConfig contains vendor cloud API settings. HomeIDs limits the
// bridge to specific homes; empty manages every home on the account.
type NetatmoConfig struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret"`
	RefreshToken          string   `json:"refresh_token"`
	BaseURL               string   `json:"base_url"`
	TokenURL              string   `json:"token_url"`
	HomeIDs               []string `json:"home_ids"`
	UpdateIntervalSeconds int      `json:"update_interval_seconds"`
}

// WebhookConfig contains push notification settings. ExternalURL is the
// public base URL the vendor can reach this service on; the webhook path
// is appended to it.
type WebhookConfig struct {
	ExternalURL string `json:"external_url"`
}

// MQTTConfig contains state mirror settings. Publishing is enabled when
// Broker is set.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	ClientID    string `json:"client_id"`
}

// TelegramConfig contains alerting settings. Alerts are enabled when
// BotToken is set.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Netatmo.ClientID == "" || c.Netatmo.ClientSecret == "" {
		return fmt.Errorf("%w: Netatmo client credentials are required", ErrInvalidConfig)
	}

	if c.Netatmo.RefreshToken == "" {
		return fmt.Errorf("%w: Netatmo refresh token is required", ErrInvalidConfig)
	}

	if c.Netatmo.UpdateIntervalSeconds < 0 {
		return fmt.Errorf("%w: update interval must not be negative", ErrInvalidConfig)
	}
	if c.Netatmo.UpdateIntervalSeconds > 0 && c.Netatmo.UpdateIntervalSeconds < 30 {
		return fmt.Errorf("%w: update interval below the 30s vendor minimum", ErrInvalidConfig)
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: telegram chat_id is required when bot_token is set", ErrInvalidConfig)
	}

	if c.Netatmo.BaseURL == "" {
		c.Netatmo.BaseURL = "https://api.netatmo.com/api/" // default
	}
	if c.Netatmo.TokenURL == "" {
		c.Netatmo.TokenURL = "https://api.netatmo.com/oauth2/token"
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "thermbridge"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("THERMBRIDGE_HOST", "0.0.0.0"),
			Port: getEnvInt("THERMBRIDGE_PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("THERMBRIDGE_DB_PATH", "./thermbridge.db"),
		},
		Security: SecurityConfig{
			APIKey: getEnv("THERMBRIDGE_API_KEY", ""),
		},
		Netatmo: NetatmoConfig{
			ClientID:              getEnv("THERMBRIDGE_NETATMO_CLIENT_ID", ""),
			ClientSecret:          getEnv("THERMBRIDGE_NETATMO_CLIENT_SECRET", ""),
			RefreshToken:          getEnv("THERMBRIDGE_NETATMO_REFRESH_TOKEN", ""),
			BaseURL:               getEnv("THERMBRIDGE_NETATMO_BASE_URL", ""),
			TokenURL:              getEnv("THERMBRIDGE_NETATMO_TOKEN_URL", ""),
			UpdateIntervalSeconds: getEnvInt("THERMBRIDGE_UPDATE_INTERVAL", 0),
		},
		Webhook: WebhookConfig{
			ExternalURL: getEnv("THERMBRIDGE_WEBHOOK_URL", ""),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("THERMBRIDGE_MQTT_BROKER", ""),
			TopicPrefix: getEnv("THERMBRIDGE_MQTT_PREFIX", ""),
			ClientID:    getEnv("THERMBRIDGE_MQTT_CLIENT_ID", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("THERMBRIDGE_TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvInt64("THERMBRIDGE_TELEGRAM_CHAT_ID", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("THERMBRIDGE_LOG_LEVEL", ""),
			Format: getEnv("THERMBRIDGE_LOG_FORMAT", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Dump renders the configuration as a generic document for diagnostics.
// Secrets are redacted downstream, not here.
func (c *Config) Dump() map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}
