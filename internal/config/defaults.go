package config

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:               8080,
		DataDir:            "data",
		AllowedOrigins:     []string{"https://web.telegram.org"},
		InitDataMaxAgeSec:  24 * 3600,
		RemoteDraftTTLMin:  6 * 60,
		AuditRetentionDays: 365,
		APIBaseURL:         "http://localhost:8080",
		RequestTimeoutSec:  15,
		DraftKeyPrefix:     "recipe_draft:",
		HandoffWaitMS:      400,
	}
}
