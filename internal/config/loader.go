package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath
// 3. ECHOLEADS_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ECHOLEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow a missing config file; defaults plus environment variables
	// are a complete configuration on their own.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrValidation, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrValidation, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return cfg, nil
}

// setDefaults registers default values for optional configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://agents.echoleads.ai/api")
	v.SetDefault("api.request_timeout", 15*time.Second)
	v.SetDefault("api.refresh_timeout", 30*time.Second)

	v.SetDefault("socket.url", "wss://agents.echoleads.ai/ws")
	v.SetDefault("socket.dial_timeout", 20*time.Second)
	v.SetDefault("socket.reconnect_attempts", 10)
	v.SetDefault("socket.reconnect_delay", 1500*time.Millisecond)
	v.SetDefault("socket.ping_interval", 15*time.Second)
	v.SetDefault("socket.typing_ttl", 3*time.Second)

	v.SetDefault("storage.path", "echoleads.db")

	v.SetDefault("scheduler.tasks.token_refresh.enabled", true)
	v.SetDefault("scheduler.tasks.token_refresh.schedule", "0 */5 * * * *")
	v.SetDefault("scheduler.tasks.storage_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.storage_maintenance.schedule", "0 0 4 * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
}
