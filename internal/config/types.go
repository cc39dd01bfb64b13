package config

// Config is the top-level recipeapp configuration, corresponding to .recipeapp.yml.
// The same file serves the API server and the interactive edit client.
type Config struct {
	// Server side.
	Port               int      `yaml:"port" koanf:"port"`
	DataDir            string   `yaml:"data_dir" koanf:"data_dir"`
	AllowedOrigins     []string `yaml:"allowed_origins" koanf:"allowed_origins"`
	BotToken           string   `yaml:"bot_token" koanf:"bot_token"`
	InitDataMaxAgeSec  int      `yaml:"init_data_max_age_sec" koanf:"init_data_max_age_sec"`
	RemoteDraftTTLMin  int      `yaml:"remote_draft_ttl_min" koanf:"remote_draft_ttl_min"`
	NotifyWebhookURL   string   `yaml:"notify_webhook_url" koanf:"notify_webhook_url"`
	AuditRetentionDays int      `yaml:"audit_retention_days" koanf:"audit_retention_days"`

	// Client side.
	APIBaseURL        string `yaml:"api_base_url" koanf:"api_base_url"`
	InitData          string `yaml:"init_data" koanf:"init_data"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec" koanf:"request_timeout_sec"`
	DraftKeyPrefix    string `yaml:"draft_key_prefix" koanf:"draft_key_prefix"`
	HandoffWaitMS     int    `yaml:"handoff_wait_ms" koanf:"handoff_wait_ms"`
}
