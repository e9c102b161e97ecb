// Package config handles YAML configuration parsing, defaults, validation,
// starter profiles and hot reload for skillrelay.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for skillrelay.
type Config struct {
	Listen      ListenConfig       `yaml:"listen"`
	Bot         BotConfig          `yaml:"bot"`
	Auth        AuthConfig         `yaml:"auth"`
	Connections []ConnectionConfig `yaml:"connections"`
	Skills      SkillsConfig       `yaml:"skills"`
	Storage     StorageConfig      `yaml:"storage"`
	OAuth       OAuthConfig        `yaml:"oauth"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Health      HealthConfig       `yaml:"health"`
	Logging     LoggingConfig      `yaml:"logging"`
	Shutdown    ShutdownConfig     `yaml:"shutdown"`
	Reload      ReloadConfig       `yaml:"reload"`
}

// ListenConfig defines the listener address and ingress limits.
type ListenConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	MaxConnections  int    `yaml:"max_connections"`
	GlobalRateLimit int    `yaml:"global_rate_limit"`
	MaxBodySize     int64  `yaml:"max_body_size"`
	// IPRateLimit is requests per minute per client IP; 0 disables it.
	IPRateLimit int `yaml:"ip_rate_limit"`
	// CallerRateLimit is requests per minute per authenticated app id; 0 disables it.
	CallerRateLimit int `yaml:"caller_rate_limit"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For entries are trusted.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// BotConfig identifies this bot to the channel and token services.
type BotConfig struct {
	AppID                  string `yaml:"app_id"`
	AppPassword            string `yaml:"app_password"`
	TenantID               string `yaml:"tenant_id"`
	TokenServiceURL        string `yaml:"token_service_url"`
	AllowAnonymousEmulator bool   `yaml:"allow_anonymous_emulator"`
	MessagesPath           string `yaml:"messages_path"`
}

// AuthConfig controls validation of inbound bearer tokens.
type AuthConfig struct {
	AllowUnauthenticated bool     `yaml:"allow_unauthenticated"`
	Issuers              []string `yaml:"issuers"`
	Audience             string   `yaml:"audience"`
	JWKSURL              string   `yaml:"jwks_url"`
	CacheTTL             Duration `yaml:"cache_ttl"`
}

// Connection types.
const (
	ConnectionAzure             = "azure"
	ConnectionClientCredentials = "client_credentials"
	ConnectionStatic            = "static"
	ConnectionAnonymous         = "anonymous"
)

// ConnectionConfig defines a named outbound credential.
type ConnectionConfig struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	Token        string `yaml:"token"`
}

// SkillsConfig describes this bot's skill host endpoint and the skills it
// may delegate to.
type SkillsConfig struct {
	// HostEndpoint is the public URL skills call back on.
	HostEndpoint string         `yaml:"host_endpoint"`
	CallbackPath string         `yaml:"callback_path"`
	Channels     []SkillChannel `yaml:"channels"`
}

// SkillChannel describes one remote skill.
type SkillChannel struct {
	ID             string   `yaml:"id"`
	AppID          string   `yaml:"app_id"`
	ResourceURL    string   `yaml:"resource_url"`
	Endpoint       string   `yaml:"endpoint"`
	TokenProvider  string   `yaml:"token_provider"`
	ChannelFactory string   `yaml:"channel_factory"`
	Timeout        Duration `yaml:"timeout"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// StorageConfig selects the backend for conversation mappings and bot state.
type StorageConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

// OAuthConfig parameterizes the sign-in flow of the shipped bot.
type OAuthConfig struct {
	ConnectionName string   `yaml:"connection_name"`
	Title          string   `yaml:"title"`
	Text           string   `yaml:"text"`
	Timeout        Duration `yaml:"timeout"`
	ShowSignInLink *bool    `yaml:"show_sign_in_link"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

// HealthConfig defines health check endpoint paths.
type HealthConfig struct {
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
	MetricsPath   string `yaml:"metrics_path"`
}

// LoggingConfig defines log output format and audit sampling.
type LoggingConfig struct {
	Level  string      `yaml:"level"`
	Format string      `yaml:"format"`
	Output string      `yaml:"output"`
	Audit  AuditConfig `yaml:"audit"`
}

// AuditConfig controls turn audit log sampling rates.
type AuditConfig struct {
	SamplingRate      float64 `yaml:"sampling_rate"`
	ErrorSamplingRate float64 `yaml:"error_sampling_rate"`
}

// ShutdownConfig defines the graceful shutdown timeout.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ReloadConfig controls config hot-reload behavior (SIGHUP and file watching).
type ReloadConfig struct {
	Enabled   bool     `yaml:"enabled"`
	WatchFile bool     `yaml:"watch_file"`
	Debounce  Duration `yaml:"debounce"`
}

// Duration is a time.Duration that supports YAML string parsing (e.g., "60s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration, parsing strings like "60s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Skill returns the skill channel with the given id.
func (c *Config) Skill(id string) (SkillChannel, bool) {
	for _, s := range c.Skills.Channels {
		if s.ID == id {
			return s, true
		}
	}
	return SkillChannel{}, false
}

// Load reads, parses, applies defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
