package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel            = "gpt-4o"
	DefaultClassifierModel  = "gpt-4o-mini"
	DefaultMaxTokens        = 1024
	DefaultTimeoutSeconds   = 60
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 18820
	DefaultRecentWindow     = 10
	DefaultSignificanceMin  = 20
	DefaultRelevanceLimit   = 10
	DefaultScanInterval     = "@every 30s"
	DefaultScanBatch        = 20
)

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Provider  ProviderConfig  `json:"provider"`
	Character CharacterConfig `json:"character"`
	Memory    MemoryConfig    `json:"memory"`
	Proactive ProactiveConfig `json:"proactive"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ProviderConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl,omitempty"`
	Model          string `json:"model"`
	MaxTokens      int    `json:"maxTokens"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type CharacterConfig struct {
	Name    string `json:"name"`
	Persona string `json:"persona"`
}

type MemoryConfig struct {
	DBPath string `json:"dbPath,omitempty"`

	// ClassifierModel handles the per-utterance search gate and the
	// relevance filter; it can be a smaller model than the chat model.
	ClassifierModel string `json:"classifierModel,omitempty"`

	// SignificanceMin is the total-significance floor a memory must clear
	// before the relevance filter even sees it.
	SignificanceMin int `json:"significanceMin"`

	// RelevanceLimit caps how many memories one deep search may inject
	// into a prompt. Prompt-size/cost tradeoff, so it stays configurable.
	RelevanceLimit int `json:"relevanceLimit"`

	// RecentWindow is how many trailing messages count as visible context.
	RecentWindow int `json:"recentWindow"`
}

type ProactiveConfig struct {
	Enabled      bool   `json:"enabled"`
	ScanInterval string `json:"scanInterval,omitempty"`
	ScanBatch    int    `json:"scanBatch,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Provider: ProviderConfig{
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Character: CharacterConfig{
			Name:    "Aya",
			Persona: "A warm, attentive companion who remembers what matters to you.",
		},
		Memory: MemoryConfig{
			ClassifierModel: DefaultClassifierModel,
			SignificanceMin: DefaultSignificanceMin,
			RelevanceLimit:  DefaultRelevanceLimit,
			RecentWindow:    DefaultRecentWindow,
		},
		Proactive: ProactiveConfig{
			Enabled:      true,
			ScanInterval: DefaultScanInterval,
			ScanBatch:    DefaultScanBatch,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".reverie")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DefaultDBPath() string {
	return filepath.Join(ConfigDir(), "reverie.db")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("REVERIE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("REVERIE_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("REVERIE_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if dbPath := os.Getenv("REVERIE_DB_PATH"); dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	if port := os.Getenv("REVERIE_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}

	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = DefaultDBPath()
	}
	if cfg.Memory.ClassifierModel == "" {
		cfg.Memory.ClassifierModel = cfg.Provider.Model
	}
	if cfg.Memory.SignificanceMin <= 0 {
		cfg.Memory.SignificanceMin = DefaultSignificanceMin
	}
	if cfg.Memory.RelevanceLimit <= 0 {
		cfg.Memory.RelevanceLimit = DefaultRelevanceLimit
	}
	if cfg.Memory.RecentWindow <= 0 {
		cfg.Memory.RecentWindow = DefaultRecentWindow
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = DefaultMaxTokens
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Proactive.ScanInterval == "" {
		cfg.Proactive.ScanInterval = DefaultScanInterval
	}
	if cfg.Proactive.ScanBatch <= 0 {
		cfg.Proactive.ScanBatch = DefaultScanBatch
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	return SaveConfigTo(cfg, ConfigPath())
}

func SaveConfigTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
