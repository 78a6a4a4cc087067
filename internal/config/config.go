// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"errors"
	"time"
)

var ErrValidation = errors.New("validation error")

// APIConfig holds settings for the Echoleads REST API client.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"        validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,min=1s,max=5m"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout" validate:"required,min=1s,max=5m"`
}

// AuthConfig holds optional login credentials used when no stored session
// is available. The device token is forwarded to the backend for push
// notification routing.
type AuthConfig struct {
	Email       string `mapstructure:"email"        validate:"omitempty,email"`
	Password    string `mapstructure:"password"`
	DeviceToken string `mapstructure:"device_token"`
}

// SocketConfig holds settings for the realtime chat channel.
type SocketConfig struct {
	URL               string        `mapstructure:"url"                validate:"required,url"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"       validate:"required,min=1s,max=2m"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" validate:"min=0,max=100"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"    validate:"required,min=100ms,max=1m"`
	PingInterval      time.Duration `mapstructure:"ping_interval"      validate:"required,min=1s,max=5m"`
	TypingTTL         time.Duration `mapstructure:"typing_ttl"         validate:"required,min=500ms,max=1m"`
}

// RoomConfig identifies the chat conversation the client attaches to.
type RoomConfig struct {
	BotID  string `mapstructure:"bot_id"`
	UserID string `mapstructure:"user_id"`
}

// StorageConfig holds settings for the local credential store.
type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TaskConfig configures a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig holds the scheduled-task table keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// Config defines the application configuration. Values can be set via
// environment variables prefixed with ECHOLEADS_ (e.g., ECHOLEADS_API_BASE_URL)
// or through config.yaml.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Socket    SocketConfig    `mapstructure:"socket"`
	Room      RoomConfig      `mapstructure:"room"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}
