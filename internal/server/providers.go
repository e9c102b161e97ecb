package server

import (
	"fmt"

	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/config"
)

// defaultTenant is the tenant multi-tenant bot registrations authenticate in.
const defaultTenant = "botframework.com"

// buildProviders turns configured connections into a named provider registry
// that skills reference through token_provider.
func buildProviders(conns []config.ConnectionConfig) (*auth.ProviderRegistry, error) {
	reg := auth.NewProviderRegistry()
	for _, c := range conns {
		p, err := providerFor(c)
		if err != nil {
			return nil, fmt.Errorf("connection %q: %w", c.Name, err)
		}
		reg.Register(c.Name, p)
	}
	return reg, nil
}

func providerFor(c config.ConnectionConfig) (auth.AccessTokenProvider, error) {
	switch c.Type {
	case config.ConnectionAzure, "":
		tenant := c.TenantID
		if tenant == "" {
			tenant = defaultTenant
		}
		return auth.NewAzureTokenProvider(tenant, c.ClientID, c.ClientSecret)
	case config.ConnectionClientCredentials:
		return auth.NewClientCredentialsProvider(c.ClientID, c.ClientSecret, c.TokenURL), nil
	case config.ConnectionStatic:
		return auth.StaticTokenProvider{Token: c.Token}, nil
	case config.ConnectionAnonymous:
		return auth.AnonymousTokenProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown connection type %q", c.Type)
	}
}

// botTokenProvider is the credential for the bot's own outbound calls. A bot
// without an app id runs anonymously, which only the emulator accepts.
func botTokenProvider(bot config.BotConfig) (auth.AccessTokenProvider, error) {
	if bot.AppID == "" {
		return auth.AnonymousTokenProvider{}, nil
	}
	return providerFor(config.ConnectionConfig{
		Type:         config.ConnectionAzure,
		TenantID:     bot.TenantID,
		ClientID:     bot.AppID,
		ClientSecret: bot.AppPassword,
	})
}
