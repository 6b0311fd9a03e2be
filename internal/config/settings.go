package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"anonedits/internal/domain"
	"anonedits/internal/status"
)

const (
	DefaultConfigPath = "config.json"
	DefaultFeedURL    = "https://stream.wikimedia.org/v2/stream/recentchange"
	defaultUserAgent  = "anonedits/1.0 (+https://github.com/edsu/anon)"
)

// ErrNoAccounts is returned when the configuration has no accounts stanza.
var ErrNoAccounts = errors.New("config: missing accounts stanza")

type Config struct {
	Feed     FeedConfig      `yaml:"feed" json:"feed"`
	Status   StatusConfig    `yaml:"status" json:"status"`
	Accounts []AccountConfig `yaml:"accounts" json:"accounts"`
}

type FeedConfig struct {
	URL       string   `yaml:"url" json:"url"`
	Wikis     []string `yaml:"wikis" json:"wikis"`
	UserAgent string   `yaml:"user_agent" json:"user_agent"`
}

type StatusConfig struct {
	Budget         int    `yaml:"budget" json:"budget"`
	PlaceholderURL string `yaml:"placeholder_url" json:"placeholder_url"`
}

type AccountConfig struct {
	Name       string                      `yaml:"name" json:"name"`
	Template   string                      `yaml:"template" json:"template"`
	Throttle   bool                        `yaml:"throttle" json:"throttle"`
	Screenshot bool                        `yaml:"screenshot" json:"screenshot"`
	Budget     int                         `yaml:"budget" json:"budget"`
	Ranges     *RangeTable                 `yaml:"ranges" json:"ranges"`
	Whitelist  map[string]map[string]bool  `yaml:"whitelist" json:"whitelist"`
	Mastodon   *domain.MastodonCredentials `yaml:"mastodon" json:"mastodon"`
}

//go:embed default_config.json
var defaultConfig []byte

var configValue atomic.Value

func init() {
	configValue.Store(Config{})
}

// Load reads the configuration file. JSON and YAML are both accepted; a
// missing file is created from the built-in default. Range tables given as a
// file path are read relative to the configuration file.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		log.Warn("Config file not found, creating with default configuration", "path", path)
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return Config{}, fmt.Errorf("config: write default %s: %w", path, err)
		}
		data = defaultConfig
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for i := range cfg.Accounts {
		table := cfg.Accounts[i].Ranges
		if table == nil || table.Path == "" {
			continue
		}
		if err := table.loadFile(baseDir); err != nil {
			table.problems = append(table.problems, err)
		}
	}

	SetConfig(cfg)
	log.Debug("Configuration loaded", "path", path, "accounts", len(cfg.Accounts))
	return cfg, nil
}

// Parse decodes configuration bytes and applies defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return Config{}, ErrNoAccounts
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = DefaultFeedURL
	}
	if cfg.Feed.UserAgent == "" {
		cfg.Feed.UserAgent = defaultUserAgent
	}
	if cfg.Status.Budget <= 0 {
		cfg.Status.Budget = status.DefaultBudget
	}
	if cfg.Status.PlaceholderURL == "" {
		cfg.Status.PlaceholderURL = status.DefaultPlaceholderURL
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Name == "" {
			cfg.Accounts[i].Name = fmt.Sprintf("account-%d", i+1)
		}
		if cfg.Accounts[i].Budget <= 0 {
			cfg.Accounts[i].Budget = cfg.Status.Budget
		}
	}
}

func SetConfig(cfg Config) {
	configValue.Store(cfg)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}
