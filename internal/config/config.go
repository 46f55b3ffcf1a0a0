package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultDailyCap        = 50
	DefaultConcurrencyCap  = 3
	DefaultTickSeconds     = 5
	DefaultInterCallDelay  = 45
	DefaultFailureBackoff  = 15
	DefaultWindowStartHour = 9
	DefaultWindowEndHour   = 20
	DefaultTimezone        = "America/New_York"
	DefaultTTLMinutes      = 15
	DefaultSweepMinutes    = 5
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18890
	DefaultBufSize         = 100
	DefaultSweepCron       = "0 0 */2 * * *"
)

type Config struct {
	Campaign     CampaignConfig     `json:"campaign"`
	Source       SourceConfig       `json:"source"`
	Conversation ConversationConfig `json:"conversation"`
	Provider     ProviderConfig     `json:"provider"`
	Gateway      GatewayConfig      `json:"gateway"`
	Store        StoreConfig        `json:"store"`
}

type CampaignConfig struct {
	DailyCap       int    `json:"dailyCap"`
	ConcurrencyCap int    `json:"concurrencyCap"`
	TickSeconds    int    `json:"tickSeconds"`
	CallerNumber   string `json:"callerNumber"`
	TargetsFile    string `json:"targetsFile,omitempty"`
	// Callback numbers handed out mid-conversation, keyed by scam category class.
	BusinessCallbacks []string `json:"businessCallbacks,omitempty"`
	PersonalCallbacks []string `json:"personalCallbacks,omitempty"`
}

type SourceConfig struct {
	FeedURLs              []string `json:"feedUrls,omitempty"`
	InterCallDelaySeconds int      `json:"interCallDelaySeconds"`
	FailureBackoffSeconds int      `json:"failureBackoffSeconds"`
	CallWindowStartHour   int      `json:"callWindowStartHour"`
	CallWindowEndHour     int      `json:"callWindowEndHour"`
	DefaultTimezone       string   `json:"defaultTimezone"`
	SweepCron             string   `json:"sweepCron,omitempty"`
}

type ConversationConfig struct {
	TTLMinutes   int `json:"ttlMinutes"`
	SweepMinutes int `json:"sweepMinutes"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "sim" (default) or "http"
	BaseURL string `json:"baseUrl,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

type GatewayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	CallbackBaseURL string `json:"callbackBaseUrl,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Campaign: CampaignConfig{
			DailyCap:       DefaultDailyCap,
			ConcurrencyCap: DefaultConcurrencyCap,
			TickSeconds:    DefaultTickSeconds,
		},
		Source: SourceConfig{
			InterCallDelaySeconds: DefaultInterCallDelay,
			FailureBackoffSeconds: DefaultFailureBackoff,
			CallWindowStartHour:   DefaultWindowStartHour,
			CallWindowEndHour:     DefaultWindowEndHour,
			DefaultTimezone:       DefaultTimezone,
			SweepCron:             DefaultSweepCron,
		},
		Conversation: ConversationConfig{
			TTLMinutes:   DefaultTTLMinutes,
			SweepMinutes: DefaultSweepMinutes,
		},
		Provider: ProviderConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Store: StoreConfig{},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".baitline")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
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
	if v := os.Getenv("BAITLINE_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("BAITLINE_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("BAITLINE_CALLER_NUMBER"); v != "" {
		cfg.Campaign.CallerNumber = v
	}
	if v := os.Getenv("BAITLINE_CALLBACK_BASE_URL"); v != "" {
		cfg.Gateway.CallbackBaseURL = v
	}
	if v := os.Getenv("BAITLINE_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("BAITLINE_FEED_URLS"); v != "" {
		cfg.Source.FeedURLs = splitList(v)
	}
	if v := os.Getenv("BAITLINE_DAILY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Campaign.DailyCap = n
		}
	}
	if v := os.Getenv("BAITLINE_CONCURRENCY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Campaign.ConcurrencyCap = n
		}
	}

	cfg.normalize()
	return cfg, nil
}

// normalize backfills zero values so a sparse config file still yields a
// runnable configuration.
func (c *Config) normalize() {
	if c.Campaign.DailyCap <= 0 {
		c.Campaign.DailyCap = DefaultDailyCap
	}
	if c.Campaign.ConcurrencyCap <= 0 {
		c.Campaign.ConcurrencyCap = DefaultConcurrencyCap
	}
	if c.Campaign.TickSeconds <= 0 {
		c.Campaign.TickSeconds = DefaultTickSeconds
	}
	if c.Source.InterCallDelaySeconds <= 0 {
		c.Source.InterCallDelaySeconds = DefaultInterCallDelay
	}
	if c.Source.FailureBackoffSeconds <= 0 {
		c.Source.FailureBackoffSeconds = DefaultFailureBackoff
	}
	if c.Source.DefaultTimezone == "" {
		c.Source.DefaultTimezone = DefaultTimezone
	}
	if c.Conversation.TTLMinutes <= 0 {
		c.Conversation.TTLMinutes = DefaultTTLMinutes
	}
	if c.Conversation.SweepMinutes <= 0 {
		c.Conversation.SweepMinutes = DefaultSweepMinutes
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultPort
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = filepath.Join(ConfigDir(), "data", "baitline.db")
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
