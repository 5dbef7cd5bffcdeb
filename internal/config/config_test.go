package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
instance: minsk
data_dir: /tmp/flatwatch-test

platforms:
  - name: kufar
    filter_url: "https://www.kufar.by/l/minsk/kupit-kvartiru"
    enabled: true
  - name: realt
    filter_url: "https://realt.by/sale/flats/"
    max_pages: 3
    enabled: false

telegram:
  bot_token: "123:abc"
  chat_ids: ["111"]

store:
  max_size: 50
  remove_count: 30
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Expected no error writing config, got: %v", err)
	}
	return path
}

func TestManager_LoadAppliesDefaults(t *testing.T) {
	cfg, err := NewManager().Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error loading config, got: %v", err)
	}

	if cfg.Instance != "minsk" {
		t.Errorf("Expected instance minsk, got %s", cfg.Instance)
	}
	if cfg.Store.MaxSize != 50 || cfg.Store.RemoveCount != 30 {
		t.Errorf("Expected store overrides applied, got max_size=%d remove_count=%d",
			cfg.Store.MaxSize, cfg.Store.RemoveCount)
	}

	// Untouched keys come from defaults
	if cfg.Store.Backend != "file" {
		t.Errorf("Expected default backend file, got %s", cfg.Store.Backend)
	}
	if cfg.Watch.MinIntervalSeconds != 300 || cfg.Watch.MaxIntervalSeconds != 480 {
		t.Errorf("Expected default intervals 300/480, got %d/%d",
			cfg.Watch.MinIntervalSeconds, cfg.Watch.MaxIntervalSeconds)
	}
	if cfg.Watch.MaxRetries != 3 {
		t.Errorf("Expected default max_retries 3, got %d", cfg.Watch.MaxRetries)
	}
	if cfg.Telegram.APIBaseURL != "https://api.telegram.org" {
		t.Errorf("Expected default API base URL, got %s", cfg.Telegram.APIBaseURL)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Logger.Level)
	}
}

func TestManager_LoadParsesPlatforms(t *testing.T) {
	cfg, err := NewManager().Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error loading config, got: %v", err)
	}

	if len(cfg.Platforms) != 2 {
		t.Fatalf("Expected 2 platforms, got %d", len(cfg.Platforms))
	}

	enabled := cfg.EnabledPlatforms()
	if len(enabled) != 1 {
		t.Fatalf("Expected 1 enabled platform, got %d", len(enabled))
	}
	if enabled[0].Name != "kufar" {
		t.Errorf("Expected enabled platform kufar, got %s", enabled[0].Name)
	}
	if cfg.Platforms[1].MaxPages != 3 {
		t.Errorf("Expected realt max_pages 3, got %d", cfg.Platforms[1].MaxPages)
	}
}

func TestManager_EnvOverridesFile(t *testing.T) {
	t.Setenv("FLATWATCH_INSTANCE", "from-env")

	cfg, err := NewManager().Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error loading config, got: %v", err)
	}
	if cfg.Instance != "from-env" {
		t.Errorf("Expected env var to override the file, got %s", cfg.Instance)
	}
}

func TestManager_LoadMissingFile(t *testing.T) {
	_, err := NewManager().Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestValidateConfig_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		wants string
	}{
		{
			name: "no enabled platforms",
			yaml: `
instance: x
platforms:
  - name: kufar
    filter_url: "https://example.com"
    enabled: false
`,
			wants: "at least one enabled platform",
		},
		{
			name: "duplicate platform names",
			yaml: `
instance: x
platforms:
  - name: kufar
    filter_url: "https://example.com"
    enabled: true
  - name: kufar
    filter_url: "https://example.com/2"
    enabled: true
`,
			wants: "duplicate platform name",
		},
		{
			name: "enabled platform without filter url",
			yaml: `
instance: x
platforms:
  - name: kufar
    enabled: true
`,
			wants: "filter_url",
		},
		{
			name: "remove count above max size",
			yaml: `
instance: x
platforms:
  - name: kufar
    filter_url: "https://example.com"
    enabled: true
store:
  max_size: 10
  remove_count: 20
`,
			wants: "remove_count",
		},
		{
			name: "unknown store backend",
			yaml: `
instance: x
platforms:
  - name: kufar
    filter_url: "https://example.com"
    enabled: true
store:
  backend: redis
`,
			wants: "unknown store backend",
		},
		{
			name: "token without chats",
			yaml: `
instance: x
platforms:
  - name: kufar
    filter_url: "https://example.com"
    enabled: true
telegram:
  bot_token: "123:abc"
`,
			wants: "chat_ids",
		},
		{
			name: "inverted watch intervals",
			yaml: `
instance: x
platforms:
  - name: kufar
    filter_url: "https://example.com"
    enabled: true
watch:
  min_interval_seconds: 600
  max_interval_seconds: 300
`,
			wants: "min_interval_seconds",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewManager().Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatalf("Expected a validation error for %s", tc.name)
			}
			if !strings.Contains(err.Error(), tc.wants) {
				t.Errorf("Expected error mentioning %q, got: %v", tc.wants, err)
			}
		})
	}
}
