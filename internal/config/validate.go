package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	// ── Ports and limits ──
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535 (got %d)", cfg.Listen.Port))
	}
	if cfg.Listen.MaxConnections < 1 {
		errs = append(errs, fmt.Sprintf("listen.max_connections must be positive (got %d)", cfg.Listen.MaxConnections))
	}
	if cfg.Listen.GlobalRateLimit < 1 {
		errs = append(errs, fmt.Sprintf("listen.global_rate_limit must be positive (got %d)", cfg.Listen.GlobalRateLimit))
	}
	if cfg.Listen.MaxBodySize < 1 {
		errs = append(errs, fmt.Sprintf("listen.max_body_size must be positive (got %d)", cfg.Listen.MaxBodySize))
	}
	if cfg.Listen.IPRateLimit < 0 {
		errs = append(errs, fmt.Sprintf("listen.ip_rate_limit must not be negative (got %d)", cfg.Listen.IPRateLimit))
	}
	if cfg.Listen.CallerRateLimit < 0 {
		errs = append(errs, fmt.Sprintf("listen.caller_rate_limit must not be negative (got %d)", cfg.Listen.CallerRateLimit))
	}
	for i, p := range cfg.Listen.TrustedProxies {
		if !isCIDROrIP(p) {
			errs = append(errs, fmt.Sprintf("listen.trusted_proxies[%d]: %q is not a CIDR or IP", i, p))
		}
	}

	// ── Bot ──
	if !isAbsoluteURL(cfg.Bot.TokenServiceURL) {
		errs = append(errs, fmt.Sprintf("bot.token_service_url must be an absolute URL (got %q)", cfg.Bot.TokenServiceURL))
	}
	if cfg.Bot.AppID != "" && cfg.Bot.AppPassword == "" {
		errs = append(errs, "bot.app_password is required when bot.app_id is set")
	}
	if !strings.HasPrefix(cfg.Bot.MessagesPath, "/") {
		errs = append(errs, fmt.Sprintf("bot.messages_path must start with / (got %q)", cfg.Bot.MessagesPath))
	}

	// ── Auth ──
	if !cfg.Auth.AllowUnauthenticated {
		if cfg.Auth.Audience == "" {
			errs = append(errs, "auth.audience (or bot.app_id) is required unless auth.allow_unauthenticated is set")
		}
		if !isAbsoluteURL(cfg.Auth.JWKSURL) {
			errs = append(errs, fmt.Sprintf("auth.jwks_url must be an absolute URL (got %q)", cfg.Auth.JWKSURL))
		}
	}

	// ── Connections ──
	connections := make(map[string]bool, len(cfg.Connections))
	for i, c := range cfg.Connections {
		if c.Name == "" {
			errs = append(errs, fmt.Sprintf("connections[%d]: name is required", i))
		} else if connections[c.Name] {
			errs = append(errs, fmt.Sprintf("connections[%d]: duplicate name %q", i, c.Name))
		}
		connections[c.Name] = true
		errs = append(errs, validateConnection(i, c)...)
	}

	// ── Skills ──
	if len(cfg.Skills.Channels) > 0 && !isAbsoluteURL(cfg.Skills.HostEndpoint) {
		errs = append(errs, fmt.Sprintf("skills.host_endpoint must be an absolute URL when skills are configured (got %q)", cfg.Skills.HostEndpoint))
	}
	if !strings.HasPrefix(cfg.Skills.CallbackPath, "/") {
		errs = append(errs, fmt.Sprintf("skills.callback_path must start with / (got %q)", cfg.Skills.CallbackPath))
	}
	skills := make(map[string]bool, len(cfg.Skills.Channels))
	for i, s := range cfg.Skills.Channels {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: id is required", i))
		} else if skills[s.ID] {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: duplicate id %q", i, s.ID))
		}
		skills[s.ID] = true
		if s.AppID == "" {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: app_id is required", i))
		}
		if !isAbsoluteURL(s.Endpoint) {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: endpoint must be an absolute URL (got %q)", i, s.Endpoint))
		}
		if s.TokenProvider != "" && !connections[s.TokenProvider] {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: token_provider %q is not a configured connection", i, s.TokenProvider))
		}
		if s.ChannelFactory != "http" {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: channel_factory must be http (got %q)", i, s.ChannelFactory))
		}
		if s.Timeout.Duration < 0 {
			errs = append(errs, fmt.Sprintf("skills.channels[%d]: timeout must be positive", i))
		}
	}

	// ── Storage ──
	switch cfg.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if cfg.Storage.Redis.Addr == "" {
			errs = append(errs, "storage.redis.addr is required when storage.type is redis")
		}
		if cfg.Storage.Redis.TTL.Duration < 0 {
			errs = append(errs, "storage.redis.ttl must not be negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.type must be one of: memory, redis (got %q)", cfg.Storage.Type))
	}

	// ── OAuth ──
	if cfg.OAuth.Timeout.Duration < 0 {
		errs = append(errs, "oauth.timeout must be positive")
	}

	// ── Telemetry ──
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint is required when telemetry is enabled")
	}

	// ── Logging ──
	if !isValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be one of: json, text (got %q)", cfg.Logging.Format))
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		errs = append(errs, fmt.Sprintf("logging.output must be one of: stdout, stderr (got %q)", cfg.Logging.Output))
	}

	// ── Sampling rates ──
	if cfg.Logging.Audit.SamplingRate < 0 || cfg.Logging.Audit.SamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.audit.sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Audit.SamplingRate))
	}
	if cfg.Logging.Audit.ErrorSamplingRate < 0 || cfg.Logging.Audit.ErrorSamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.audit.error_sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Audit.ErrorSamplingRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateConnection(i int, c ConnectionConfig) []string {
	var errs []string
	switch c.Type {
	case ConnectionAzure:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			errs = append(errs, fmt.Sprintf("connections[%d]: azure connections need tenant_id, client_id and client_secret", i))
		}
	case ConnectionClientCredentials:
		if c.ClientID == "" || c.ClientSecret == "" {
			errs = append(errs, fmt.Sprintf("connections[%d]: client_credentials connections need client_id and client_secret", i))
		}
		if !isAbsoluteURL(c.TokenURL) {
			errs = append(errs, fmt.Sprintf("connections[%d]: token_url must be an absolute URL (got %q)", i, c.TokenURL))
		}
	case ConnectionStatic:
		if c.Token == "" {
			errs = append(errs, fmt.Sprintf("connections[%d]: static connections need a token", i))
		}
	case ConnectionAnonymous:
	default:
		errs = append(errs, fmt.Sprintf("connections[%d]: type must be one of: azure, client_credentials, static, anonymous (got %q)", i, c.Type))
	}
	return errs
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isValidLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isCIDROrIP(s string) bool {
	if _, _, err := net.ParseCIDR(s); err == nil {
		return true
	}
	return net.ParseIP(s) != nil
}
