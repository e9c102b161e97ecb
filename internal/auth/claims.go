// Package auth models the caller identity of a turn and the credentials a
// turn uses to call back out: inbound JWT validation, skill claim detection
// and access-token providers keyed by audience.
package auth

import "strings"

// Claim names read from inbound tokens.
const (
	AudienceClaim        = "aud"
	AppIDClaim           = "appid"
	AuthorizedPartyClaim = "azp"
	VersionClaim         = "ver"
	ServiceURLClaim      = "serviceurl"
	IssuerClaim          = "iss"
	SubjectClaim         = "sub"
	TenantIDClaim        = "tid"
)

const (
	// ChannelAudience is the audience the channel service issues tokens for,
	// and the default scope for calls back into it.
	ChannelAudience = "https://api.botframework.com"

	// AnonymousSkillAppID is the app id stamped on synthesized emulator identities.
	AnonymousSkillAppID = "AnonymousSkill"

	// AnonymousAuthType marks identities that were not backed by a token.
	AnonymousAuthType = "anonymous"

	// BearerAuthType marks identities built from a validated bearer token.
	BearerAuthType = "Bearer"
)

// ClaimsIdentity is the set of claims describing who made (or will make) a
// call. One is built per turn and never shared between turns.
type ClaimsIdentity struct {
	Claims             map[string]string
	IsAuthenticated    bool
	AuthenticationType string
}

// NewClaimsIdentity copies claims into a new identity.
func NewClaimsIdentity(claims map[string]string, authenticated bool, authType string) *ClaimsIdentity {
	c := make(map[string]string, len(claims))
	for k, v := range claims {
		c[k] = v
	}
	return &ClaimsIdentity{Claims: c, IsAuthenticated: authenticated, AuthenticationType: authType}
}

// NewAppIdentity synthesizes the identity used for proactive turns started by
// the bot with the given app id.
func NewAppIdentity(appID string) *ClaimsIdentity {
	return NewClaimsIdentity(map[string]string{
		AudienceClaim: appID,
		AppIDClaim:    appID,
	}, true, BearerAuthType)
}

// NewAnonymousSkillIdentity returns the identity used when the anonymous
// emulator path is enabled and no token was presented.
func NewAnonymousSkillIdentity() *ClaimsIdentity {
	return NewClaimsIdentity(map[string]string{
		AudienceClaim: AnonymousSkillAppID,
		AppIDClaim:    AnonymousSkillAppID,
	}, true, AnonymousAuthType)
}

// Claim returns the named claim or "".
func (c *ClaimsIdentity) Claim(name string) string {
	if c == nil {
		return ""
	}
	return c.Claims[name]
}

// Audience returns the aud claim.
func (c *ClaimsIdentity) Audience() string { return c.Claim(AudienceClaim) }

// IsAnonymous reports whether the identity was synthesized without a token.
func (c *ClaimsIdentity) IsAnonymous() bool {
	return c != nil && c.AuthenticationType == AnonymousAuthType
}

// AppID returns the caller's application id. Version 1.0 tokens carry it in
// appid, version 2.0 tokens in azp.
func (c *ClaimsIdentity) AppID() string {
	if c == nil {
		return ""
	}
	switch c.Claims[VersionClaim] {
	case "", "1.0":
		return c.Claims[AppIDClaim]
	case "2.0":
		return c.Claims[AuthorizedPartyClaim]
	default:
		return ""
	}
}

// IsBotCaller reports whether the identity is a real bot calling as a skill.
// The anonymous emulator identity carries skill claims but stands for a user.
func (c *ClaimsIdentity) IsBotCaller() bool {
	return c.IsSkillClaim() && !c.IsAnonymous()
}

// IsSkillClaim reports whether the identity belongs to another bot calling
// as a skill (or as the skill's parent). Tokens issued by the channel itself
// never qualify.
func (c *ClaimsIdentity) IsSkillClaim() bool {
	if c == nil {
		return false
	}
	if c.Claims[AppIDClaim] == AnonymousSkillAppID {
		return true
	}
	if _, ok := c.Claims[VersionClaim]; !ok {
		return false
	}
	aud := c.Claims[AudienceClaim]
	if aud == "" || aud == ChannelAudience {
		return false
	}
	appID := c.AppID()
	if appID == "" {
		return false
	}
	return appID != aud
}

// ScopeFor turns an audience into an OAuth scope.
func ScopeFor(audience string) string {
	if audience == "" {
		audience = ChannelAudience
	}
	if strings.HasSuffix(audience, "/.default") {
		return audience
	}
	return strings.TrimSuffix(audience, "/") + "/.default"
}
