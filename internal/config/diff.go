package config

import (
	"fmt"
	"reflect"
)

// Change describes a single configuration field that differs between two configs.
type Change struct {
	Field      string      // dot-separated field path (e.g., "skills.channels[weather].endpoint")
	OldValue   interface{} // previous value
	NewValue   interface{} // new value
	Reloadable bool        // whether this change can be applied without restart
}

// Diff compares two Config values and returns a list of changes.
// Each change is annotated with whether it is reloadable at runtime.
func Diff(old, new *Config) []Change {
	var changes []Change

	// ── Non-reloadable: listen ──
	diffField(&changes, "listen.host", old.Listen.Host, new.Listen.Host, false)
	diffField(&changes, "listen.port", old.Listen.Port, new.Listen.Port, false)
	diffField(&changes, "listen.max_connections", old.Listen.MaxConnections, new.Listen.MaxConnections, false)
	diffField(&changes, "listen.global_rate_limit", old.Listen.GlobalRateLimit, new.Listen.GlobalRateLimit, false)
	diffField(&changes, "listen.max_body_size", old.Listen.MaxBodySize, new.Listen.MaxBodySize, false)
	diffField(&changes, "listen.ip_rate_limit", old.Listen.IPRateLimit, new.Listen.IPRateLimit, false)
	diffField(&changes, "listen.caller_rate_limit", old.Listen.CallerRateLimit, new.Listen.CallerRateLimit, false)
	diffStringSlice(&changes, "listen.trusted_proxies", old.Listen.TrustedProxies, new.Listen.TrustedProxies, false)

	// ── Non-reloadable: bot identity and ingress auth ──
	diffField(&changes, "bot.app_id", old.Bot.AppID, new.Bot.AppID, false)
	diffSecret(&changes, "bot.app_password", old.Bot.AppPassword, new.Bot.AppPassword)
	diffField(&changes, "bot.tenant_id", old.Bot.TenantID, new.Bot.TenantID, false)
	diffField(&changes, "bot.token_service_url", old.Bot.TokenServiceURL, new.Bot.TokenServiceURL, false)
	diffField(&changes, "bot.allow_anonymous_emulator", old.Bot.AllowAnonymousEmulator, new.Bot.AllowAnonymousEmulator, false)
	diffField(&changes, "bot.messages_path", old.Bot.MessagesPath, new.Bot.MessagesPath, false)
	diffField(&changes, "auth.allow_unauthenticated", old.Auth.AllowUnauthenticated, new.Auth.AllowUnauthenticated, false)
	diffStringSlice(&changes, "auth.issuers", old.Auth.Issuers, new.Auth.Issuers, false)
	diffField(&changes, "auth.audience", old.Auth.Audience, new.Auth.Audience, false)
	diffField(&changes, "auth.jwks_url", old.Auth.JWKSURL, new.Auth.JWKSURL, false)

	// ── Non-reloadable: connections ──
	diffConnections(&changes, old.Connections, new.Connections)

	// ── Reloadable: skills ──
	diffField(&changes, "skills.host_endpoint", old.Skills.HostEndpoint, new.Skills.HostEndpoint, true)
	diffField(&changes, "skills.callback_path", old.Skills.CallbackPath, new.Skills.CallbackPath, false)
	diffSkills(&changes, old.Skills.Channels, new.Skills.Channels)

	// ── Non-reloadable: storage ──
	diffField(&changes, "storage.type", old.Storage.Type, new.Storage.Type, false)
	diffField(&changes, "storage.redis.addr", old.Storage.Redis.Addr, new.Storage.Redis.Addr, false)
	diffField(&changes, "storage.redis.db", old.Storage.Redis.DB, new.Storage.Redis.DB, false)
	diffField(&changes, "storage.redis.prefix", old.Storage.Redis.Prefix, new.Storage.Redis.Prefix, false)
	diffField(&changes, "storage.redis.ttl", old.Storage.Redis.TTL.Duration, new.Storage.Redis.TTL.Duration, false)

	// ── Reloadable: oauth ──
	diffField(&changes, "oauth.connection_name", old.OAuth.ConnectionName, new.OAuth.ConnectionName, true)
	diffField(&changes, "oauth.title", old.OAuth.Title, new.OAuth.Title, true)
	diffField(&changes, "oauth.text", old.OAuth.Text, new.OAuth.Text, true)
	diffField(&changes, "oauth.timeout", old.OAuth.Timeout.Duration, new.OAuth.Timeout.Duration, true)
	diffField(&changes, "oauth.show_sign_in_link", old.OAuth.ShowSignInLink, new.OAuth.ShowSignInLink, true)

	// ── Non-reloadable: telemetry ──
	diffField(&changes, "telemetry.enabled", old.Telemetry.Enabled, new.Telemetry.Enabled, false)
	diffField(&changes, "telemetry.endpoint", old.Telemetry.Endpoint, new.Telemetry.Endpoint, false)

	// ── Reloadable: logging.audit ──
	diffField(&changes, "logging.level", old.Logging.Level, new.Logging.Level, false)
	diffField(&changes, "logging.format", old.Logging.Format, new.Logging.Format, false)
	diffField(&changes, "logging.audit.sampling_rate", old.Logging.Audit.SamplingRate, new.Logging.Audit.SamplingRate, true)
	diffField(&changes, "logging.audit.error_sampling_rate", old.Logging.Audit.ErrorSamplingRate, new.Logging.Audit.ErrorSamplingRate, true)

	// ── Non-reloadable: health, shutdown ──
	diffField(&changes, "health.liveness_path", old.Health.LivenessPath, new.Health.LivenessPath, false)
	diffField(&changes, "health.readiness_path", old.Health.ReadinessPath, new.Health.ReadinessPath, false)
	diffField(&changes, "shutdown.timeout", old.Shutdown.Timeout.Duration, new.Shutdown.Timeout.Duration, false)

	return changes
}

// HasRestartOnly reports whether any change needs a restart.
func HasRestartOnly(changes []Change) bool {
	for _, c := range changes {
		if !c.Reloadable {
			return true
		}
	}
	return false
}

// diffSecret reports a restart-only change without exposing either value.
func diffSecret(changes *[]Change, field, oldVal, newVal string) {
	if oldVal != newVal {
		*changes = append(*changes, Change{Field: field, OldValue: redact(oldVal), NewValue: redact(newVal)})
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}

// diffField appends a Change if old != new using reflect.DeepEqual for comparison.
func diffField(changes *[]Change, field string, oldVal, newVal interface{}, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

// diffStringSlice compares two string slices and appends a Change if they differ.
func diffStringSlice(changes *[]Change, field string, oldVal, newVal []string, reloadable bool) {
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

// diffSkills compares skill lists by id. Additions, removals and setting
// changes are all reloadable.
func diffSkills(changes *[]Change, oldSkills, newSkills []SkillChannel) {
	oldMap := make(map[string]SkillChannel, len(oldSkills))
	for _, s := range oldSkills {
		oldMap[s.ID] = s
	}
	newMap := make(map[string]SkillChannel, len(newSkills))
	for _, s := range newSkills {
		newMap[s.ID] = s
	}

	for id, s := range oldMap {
		if _, exists := newMap[id]; !exists {
			*changes = append(*changes, Change{Field: fmt.Sprintf("skills.channels[%s]", id), OldValue: s, Reloadable: true})
		}
	}
	for id, s := range newMap {
		if _, exists := oldMap[id]; !exists {
			*changes = append(*changes, Change{Field: fmt.Sprintf("skills.channels[%s]", id), NewValue: s, Reloadable: true})
		}
	}

	for id, o := range oldMap {
		n, exists := newMap[id]
		if !exists {
			continue
		}
		prefix := fmt.Sprintf("skills.channels[%s]", id)
		diffField(changes, prefix+".app_id", o.AppID, n.AppID, true)
		diffField(changes, prefix+".resource_url", o.ResourceURL, n.ResourceURL, true)
		diffField(changes, prefix+".endpoint", o.Endpoint, n.Endpoint, true)
		diffField(changes, prefix+".token_provider", o.TokenProvider, n.TokenProvider, true)
		diffField(changes, prefix+".channel_factory", o.ChannelFactory, n.ChannelFactory, true)
		diffField(changes, prefix+".timeout", o.Timeout.Duration, n.Timeout.Duration, true)
	}
}

// diffConnections reports connection changes. Credentials are built once
// at startup, so none of these are reloadable.
func diffConnections(changes *[]Change, oldConns, newConns []ConnectionConfig) {
	oldMap := make(map[string]ConnectionConfig, len(oldConns))
	for _, c := range oldConns {
		oldMap[c.Name] = c
	}
	newMap := make(map[string]ConnectionConfig, len(newConns))
	for _, c := range newConns {
		newMap[c.Name] = c
	}

	for name := range oldMap {
		if _, exists := newMap[name]; !exists {
			*changes = append(*changes, Change{Field: fmt.Sprintf("connections[%s]", name), OldValue: name})
		}
	}
	for name := range newMap {
		if _, exists := oldMap[name]; !exists {
			*changes = append(*changes, Change{Field: fmt.Sprintf("connections[%s]", name), NewValue: name})
		}
	}
	for name, o := range oldMap {
		n, exists := newMap[name]
		if !exists {
			continue
		}
		prefix := fmt.Sprintf("connections[%s]", name)
		diffField(changes, prefix+".type", o.Type, n.Type, false)
		diffField(changes, prefix+".client_id", o.ClientID, n.ClientID, false)
		diffSecret(changes, prefix+".client_secret", o.ClientSecret, n.ClientSecret)
		diffField(changes, prefix+".token_url", o.TokenURL, n.TokenURL, false)
		diffSecret(changes, prefix+".token", o.Token, n.Token)
	}
}
