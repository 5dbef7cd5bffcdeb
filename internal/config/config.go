package config

import "flatwatch-go/pkg/logger"

type Config struct {
	Instance  string           `mapstructure:"instance"`
	DataDir   string           `mapstructure:"data_dir"`
	Platforms []PlatformConfig `mapstructure:"platforms"`
	Telegram  TelegramConfig   `mapstructure:"telegram"`
	Store     StoreConfig      `mapstructure:"store"`
	Watch     WatchConfig      `mapstructure:"watch"`
	Server    ServerConfig     `mapstructure:"server"`
	Logger    logger.Config    `mapstructure:"logger"`
}

// PlatformConfig describes one watched site. FilterURL is the fully filtered
// results page (region, rooms, price), MaxPages how deep pagination is
// walked where the platform supports it.
type PlatformConfig struct {
	Name      string `mapstructure:"name"`
	FilterURL string `mapstructure:"filter_url"`
	MaxPages  int    `mapstructure:"max_pages"`
	Enabled   bool   `mapstructure:"enabled"`
}

type TelegramConfig struct {
	BotToken       string   `mapstructure:"bot_token"`
	ChatIDs        []string `mapstructure:"chat_ids"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	APIBaseURL     string   `mapstructure:"api_base_url"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	MaxSize     int    `mapstructure:"max_size"`
	RemoveCount int    `mapstructure:"remove_count"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type WatchConfig struct {
	MinIntervalSeconds       int `mapstructure:"min_interval_seconds"`
	MaxIntervalSeconds       int `mapstructure:"max_interval_seconds"`
	MaxRetries               int `mapstructure:"max_retries"`
	InitialRetryDelaySeconds int `mapstructure:"initial_retry_delay_seconds"`
	NotifyDelaySeconds       int `mapstructure:"notify_delay_seconds"`
	FetchTimeoutSeconds      int `mapstructure:"fetch_timeout_seconds"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// EnabledPlatforms filters the platform list down to the active ones.
func (c *Config) EnabledPlatforms() []PlatformConfig {
	var enabled []PlatformConfig
	for _, p := range c.Platforms {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

type Manager interface {
	Load(configPath string) (*Config, error)
	Reload() error
	GetConfig() *Config
}
