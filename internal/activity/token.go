package activity

// Names of the event and invoke activities that carry the sign-in negotiation.
const (
	EventTokenResponse  = "tokens/response"
	InvokeVerifyState   = "signin/verifyState"
	InvokeTokenExchange = "signin/tokenExchange"
)

// TokenResponse is a user token issued for a connection.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
	Expiration     string `json:"expiration,omitempty"`
}

// TokenExchangeRequest is the body of an exchange call to the token service.
// Exactly one of URI or Token is normally set.
type TokenExchangeRequest struct {
	URI   string `json:"uri,omitempty"`
	Token string `json:"token,omitempty"`
}

// TokenExchangeInvokeRequest is the value of a signin/tokenExchange invoke.
type TokenExchangeInvokeRequest struct {
	ID             string `json:"id,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
}

// TokenExchangeInvokeResponse is the body returned for a signin/tokenExchange invoke.
type TokenExchangeInvokeResponse struct {
	ID             string  `json:"id,omitempty"`
	ConnectionName string  `json:"connectionName,omitempty"`
	FailureDetail  *string `json:"failureDetail"`
}

// VerifyStateValue is the value of a signin/verifyState invoke.
type VerifyStateValue struct {
	State string `json:"state,omitempty"`
}

// SignInResource is what the token service hands back for building a sign-in card.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty"`
}

// TokenExchangeResource describes an SSO exchange the channel may perform.
type TokenExchangeResource struct {
	ID         string `json:"id,omitempty"`
	URI        string `json:"uri,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// TokenPostResource carries the URL a channel posts a token to directly.
type TokenPostResource struct {
	SasURL string `json:"sasUrl,omitempty"`
}
