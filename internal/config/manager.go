package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type manager struct {
	mu     sync.RWMutex
	config *Config
	viper  *viper.Viper
}

func NewManager() Manager {
	return &manager{
		viper: viper.New(),
	}
}

func (m *manager) Load(configPath string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setupViper(configPath)

	if err := m.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m.config = &config
	return &config, nil
}

func (m *manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.viper == nil {
		return fmt.Errorf("config not loaded")
	}

	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.config = &config
	return nil
}

func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *manager) setupViper(configPath string) {
	m.viper.SetConfigFile(configPath)

	m.viper.SetEnvPrefix("FLATWATCH")
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	m.setDefaults()
}

// setDefaults registers every tunable so env overrides resolve even when the
// config file omits the key.
func (m *manager) setDefaults() {
	m.viper.SetDefault("instance", "default")
	m.viper.SetDefault("data_dir", "data")

	m.viper.SetDefault("store.backend", "file")
	m.viper.SetDefault("store.max_size", 100)
	m.viper.SetDefault("store.remove_count", 70)

	m.viper.SetDefault("watch.min_interval_seconds", 300)
	m.viper.SetDefault("watch.max_interval_seconds", 480)
	m.viper.SetDefault("watch.max_retries", 3)
	m.viper.SetDefault("watch.initial_retry_delay_seconds", 30)
	m.viper.SetDefault("watch.notify_delay_seconds", 1)
	m.viper.SetDefault("watch.fetch_timeout_seconds", 30)

	// Secrets are usually injected via environment, registering them keeps
	// the env override visible to Unmarshal even when the file omits them
	m.viper.SetDefault("telegram.bot_token", "")
	m.viper.SetDefault("telegram.chat_ids", []string{})
	m.viper.SetDefault("telegram.timeout_seconds", 30)
	m.viper.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	m.viper.SetDefault("store.postgres_dsn", "")

	m.viper.SetDefault("server.enabled", true)
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 8080)

	m.viper.SetDefault("logger.level", "info")
	m.viper.SetDefault("logger.format", "console")
	m.viper.SetDefault("logger.output", "stdout")
}

func validateConfig(config *Config) error {
	if config.Instance == "" {
		return fmt.Errorf("instance cannot be empty")
	}
	if config.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	enabled := config.EnabledPlatforms()
	if len(enabled) == 0 {
		return fmt.Errorf("at least one enabled platform is required")
	}

	names := make(map[string]bool)
	for _, p := range config.Platforms {
		if p.Name == "" {
			return fmt.Errorf("platform name cannot be empty")
		}
		// Duplicate names would collide on one retention scope
		if names[p.Name] {
			return fmt.Errorf("duplicate platform name: %s", p.Name)
		}
		names[p.Name] = true

		if p.Enabled && p.FilterURL == "" {
			return fmt.Errorf("platform %s: filter_url cannot be empty", p.Name)
		}
		if p.MaxPages < 0 {
			return fmt.Errorf("platform %s: max_pages cannot be negative", p.Name)
		}
	}

	switch config.Store.Backend {
	case "file", "memory":
	case "postgres":
		if config.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres backend requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", config.Store.Backend)
	}
	if config.Store.MaxSize <= 0 {
		return fmt.Errorf("store max_size must be positive")
	}
	if config.Store.RemoveCount <= 0 {
		return fmt.Errorf("store remove_count must be positive")
	}
	if config.Store.RemoveCount > config.Store.MaxSize {
		return fmt.Errorf("store remove_count %d exceeds max_size %d",
			config.Store.RemoveCount, config.Store.MaxSize)
	}

	if config.Watch.MinIntervalSeconds <= 0 || config.Watch.MaxIntervalSeconds <= 0 {
		return fmt.Errorf("watch intervals must be positive")
	}
	if config.Watch.MinIntervalSeconds > config.Watch.MaxIntervalSeconds {
		return fmt.Errorf("watch min_interval_seconds %d exceeds max_interval_seconds %d",
			config.Watch.MinIntervalSeconds, config.Watch.MaxIntervalSeconds)
	}
	if config.Watch.MaxRetries < 0 {
		return fmt.Errorf("watch max_retries cannot be negative")
	}

	if config.Telegram.BotToken != "" && len(config.Telegram.ChatIDs) == 0 {
		return fmt.Errorf("telegram bot_token is set but chat_ids is empty")
	}
	if config.Telegram.BotToken == "" && len(config.Telegram.ChatIDs) > 0 {
		return fmt.Errorf("telegram chat_ids is set but bot_token is empty")
	}

	if config.Server.Enabled {
		if config.Server.Port <= 0 || config.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d", config.Server.Port)
		}
	}

	return nil
}
