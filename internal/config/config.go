package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file settings.
const EnvPrefix = "RECIPEAPP_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (RECIPEAPP_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: RECIPEAPP_BOT_TOKEN -> bot_token, etc.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// An env override arrives as a single comma-separated value.
	if len(cfg.AllowedOrigins) == 1 && strings.Contains(cfg.AllowedOrigins[0], ",") {
		cfg.AllowedOrigins = splitAndTrim(cfg.AllowedOrigins[0])
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if strings.TrimSpace(c.DraftKeyPrefix) == "" {
		return fmt.Errorf("draft_key_prefix is required")
	}
	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("request_timeout_sec must be non-negative")
	}
	if c.HandoffWaitMS < 0 {
		return fmt.Errorf("handoff_wait_ms must be non-negative")
	}
	if c.InitDataMaxAgeSec < 0 {
		return fmt.Errorf("init_data_max_age_sec must be non-negative")
	}
	if c.AuditRetentionDays < 0 {
		return fmt.Errorf("audit_retention_days must be non-negative")
	}
	if c.RemoteDraftTTLMin <= 0 {
		return fmt.Errorf("remote_draft_ttl_min must be positive")
	}
	return nil
}

// ValidateServer checks the settings the API server cannot start without.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot_token is required (set %sBOT_TOKEN)", EnvPrefix)
	}
	return nil
}

// InitDataMaxAge is how old a host identity token may be before it is rejected.
// Zero disables the age check.
func (c *Config) InitDataMaxAge() time.Duration {
	return time.Duration(c.InitDataMaxAgeSec) * time.Second
}

// RemoteDraftTTL is the lifetime of a server-side draft cache entry.
func (c *Config) RemoteDraftTTL() time.Duration {
	return time.Duration(c.RemoteDraftTTLMin) * time.Minute
}

// AuditRetention is how long edit history is kept. Zero keeps it forever.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// RequestTimeout bounds a single API call made by the edit client.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// HandoffWait is how long a hand-off waits for the remote draft push.
func (c *Config) HandoffWait() time.Duration {
	return time.Duration(c.HandoffWaitMS) * time.Millisecond
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
