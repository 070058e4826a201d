// Package config loads the watcher process configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "EXECWATCH_CONFIG"

var defaultCandidates = []string{
	"config/watcher.yaml",
	"watcher.yaml",
}

// Config is the root configuration document.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Watchers  []WatcherConfig `yaml:"watchers"`
	Accounts  []AccountConfig `yaml:"accounts"`
}

// TelemetryConfig selects the OTLP metric destination. An empty endpoint
// disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
}

// NotifierConfig configures the Telegram destination.
type NotifierConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

// WatcherConfig describes one execution-report stream watcher.
type WatcherConfig struct {
	Name              string          `yaml:"name"`
	StreamURL         string          `yaml:"stream_url"`
	Host              string          `yaml:"host"`
	Path              string          `yaml:"path"`
	APIKey            string          `yaml:"api_key"`
	APISecret         string          `yaml:"api_secret"`
	SubscribeUser     string          `yaml:"subscribe_user"`
	ExcludeUsers      []string        `yaml:"exclude_users"`
	SubAccounts       []string        `yaml:"sub_accounts"`
	AccountLabel      string          `yaml:"account_label"`
	PerExecFills      bool            `yaml:"per_exec_fills"`
	QuoteQtyOverrides map[string]bool `yaml:"quote_qty_overrides"`
	ReadTimeout       time.Duration   `yaml:"read_timeout"`
}

// AccountConfig describes one REST open-orders endpoint for the snapshot
// command.
type AccountConfig struct {
	Label        string   `yaml:"label"`
	Host         string   `yaml:"host"`
	Path         string   `yaml:"path"`
	APIKey       string   `yaml:"api_key"`
	APISecret    string   `yaml:"api_secret"`
	SubAccounts  []string `yaml:"sub_accounts"`
	ExcludeUsers []string `yaml:"exclude_users"`
	PageLimit    int      `yaml:"page_limit"`
}

// Load reads the configuration from path. An empty path falls back to the
// environment variable, then the default candidate files.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path == "" {
		for _, candidate := range defaultCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return Config{}, fmt.Errorf("no config file found, set %s or create %s", EnvConfigPath, defaultCandidates[0])
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs semantic validation on the loaded configuration.
func (c Config) Validate() error {
	names := make(map[string]struct{}, len(c.Watchers))
	for i, w := range c.Watchers {
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("watcher[%d]: name required", i)
		}
		if _, dup := names[w.Name]; dup {
			return fmt.Errorf("watcher[%d]: duplicate name %q", i, w.Name)
		}
		names[w.Name] = struct{}{}
		if strings.TrimSpace(w.StreamURL) == "" {
			return fmt.Errorf("watcher %s: stream_url required", w.Name)
		}
		if strings.TrimSpace(w.APIKey) == "" || strings.TrimSpace(w.APISecret) == "" {
			return fmt.Errorf("watcher %s: api_key and api_secret required", w.Name)
		}
		if w.ReadTimeout < 0 {
			return fmt.Errorf("watcher %s: read_timeout must be >=0", w.Name)
		}
	}
	for i, a := range c.Accounts {
		if strings.TrimSpace(a.Label) == "" {
			return fmt.Errorf("account[%d]: label required", i)
		}
		if strings.TrimSpace(a.Host) == "" {
			return fmt.Errorf("account %s: host required", a.Label)
		}
		if strings.TrimSpace(a.APIKey) == "" || strings.TrimSpace(a.APISecret) == "" {
			return fmt.Errorf("account %s: api_key and api_secret required", a.Label)
		}
		if a.PageLimit < 0 {
			return fmt.Errorf("account %s: page_limit must be >=0", a.Label)
		}
	}
	if c.Notifier.TelegramToken != "" && c.Notifier.TelegramChatID == 0 {
		return fmt.Errorf("notifier: telegram_chat_id required when telegram_token is set")
	}
	return nil
}
