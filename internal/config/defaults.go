package config

import "time"

// Default channel service endpoints.
const (
	DefaultTokenServiceURL = "https://token.botframework.com"
	DefaultJWKSURL         = "https://login.botframework.com/v1/.well-known/keys"
	DefaultIssuer          = "https://api.botframework.com"
)

// ApplyDefaults fills zero-valued fields with defaults.
// It is called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	// ── Listen ──
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 3978
	}
	if cfg.Listen.MaxConnections == 0 {
		cfg.Listen.MaxConnections = 1000
	}
	if cfg.Listen.GlobalRateLimit == 0 {
		cfg.Listen.GlobalRateLimit = 5000
	}
	if cfg.Listen.MaxBodySize == 0 {
		cfg.Listen.MaxBodySize = 1 << 20
	}

	// ── Bot ──
	if cfg.Bot.TokenServiceURL == "" {
		cfg.Bot.TokenServiceURL = DefaultTokenServiceURL
	}
	if cfg.Bot.MessagesPath == "" {
		cfg.Bot.MessagesPath = "/api/messages"
	}

	// ── Auth ──
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = cfg.Bot.AppID
	}
	if cfg.Auth.JWKSURL == "" {
		cfg.Auth.JWKSURL = DefaultJWKSURL
	}
	if cfg.Auth.Issuers == nil {
		cfg.Auth.Issuers = []string{DefaultIssuer}
	}
	if cfg.Auth.CacheTTL.Duration == 0 {
		cfg.Auth.CacheTTL.Duration = time.Hour
	}

	// ── Connections ──
	for i := range cfg.Connections {
		if cfg.Connections[i].Type == "" {
			cfg.Connections[i].Type = ConnectionAzure
		}
	}

	// ── Skills ──
	if cfg.Skills.CallbackPath == "" {
		cfg.Skills.CallbackPath = "/api/skills"
	}
	for i := range cfg.Skills.Channels {
		applySkillChannelDefaults(&cfg.Skills.Channels[i])
	}

	// ── Storage ──
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageMemory
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "skillrelay"
	}

	// ── OAuth ──
	if cfg.OAuth.Title == "" {
		cfg.OAuth.Title = "Sign In"
	}
	if cfg.OAuth.Text == "" {
		cfg.OAuth.Text = "Please sign in to continue."
	}
	if cfg.OAuth.Timeout.Duration == 0 {
		cfg.OAuth.Timeout.Duration = 15 * time.Minute
	}

	// ── Telemetry ──
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "skillrelay"
	}

	// ── Health ──
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = "/healthz"
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = "/readyz"
	}
	if cfg.Health.MetricsPath == "" {
		cfg.Health.MetricsPath = "/metrics"
	}

	// ── Logging ──
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Audit.SamplingRate == 0 {
		cfg.Logging.Audit.SamplingRate = 1.0
	}
	if cfg.Logging.Audit.ErrorSamplingRate == 0 {
		cfg.Logging.Audit.ErrorSamplingRate = 1.0
	}

	// ── Shutdown ──
	if cfg.Shutdown.Timeout.Duration == 0 {
		cfg.Shutdown.Timeout.Duration = 30 * time.Second
	}

	// ── Reload ──
	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = 2 * time.Second
	}
}

func applySkillChannelDefaults(s *SkillChannel) {
	if s.ResourceURL == "" {
		s.ResourceURL = s.AppID
	}
	if s.ChannelFactory == "" {
		s.ChannelFactory = "http"
	}
	if s.Timeout.Duration == 0 {
		s.Timeout.Duration = 30 * time.Second
	}
}
