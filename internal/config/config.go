package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	State         StateConfig         `yaml:"state"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Billing       BillingConfig       `yaml:"billing"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BackendConfig points the console at the platform REST API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StateConfig locates the local state file. EncryptionKey is an optional
// hex-encoded 32-byte key; when set, the persisted session blob is sealed
// at rest.
type StateConfig struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"`
}

// RefreshConfig controls the background batch-status refresher.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type NotificationsConfig struct {
	UsageWarnPercent  float64 `yaml:"usage_warn_percent"`
	UsageAlertPercent float64 `yaml:"usage_alert_percent"`
	LowSuccessRate    float64 `yaml:"low_success_rate"`
	HighCallVolume    int     `yaml:"high_call_volume"`
}

type BillingConfig struct {
	PaymentPageSize int `yaml:"payment_page_size"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         7780,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "https://api.voxdeck.example.com",
			Timeout: 30 * time.Second,
		},
		State: StateConfig{
			Path: "voxdeck.db",
		},
		Refresh: RefreshConfig{
			Interval: 30 * time.Second,
		},
		Notifications: NotificationsConfig{
			UsageWarnPercent:  80,
			UsageAlertPercent: 95,
			LowSuccessRate:    85,
			HighCallVolume:    100,
		},
		Billing: BillingConfig{
			PaymentPageSize: 50,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXDECK_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("VOXDECK_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("VOXDECK_STATE_KEY"); v != "" {
		cfg.State.EncryptionKey = v
	}
	if v := os.Getenv("VOXDECK_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VOXDECK_HOST"); v != "" {
		cfg.Server.Host = v
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
