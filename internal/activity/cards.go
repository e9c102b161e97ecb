package activity

// Attachment content types understood by the sign-in flow.
const (
	ContentTypeOAuthCard  = "application/vnd.microsoft.card.oauth"
	ContentTypeSigninCard = "application/vnd.microsoft.card.signin"
)

// Card action types.
const (
	ActionSignin  = "signin"
	ActionOpenURL = "openUrl"
)

// Attachment is a typed payload carried by an activity.
type Attachment struct {
	ContentType  string `json:"contentType"`
	ContentURL   string `json:"contentUrl,omitempty"`
	Content      any    `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// CardAction is a clickable action on a card.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
}

// OAuthCard asks the channel to run a managed sign-in for ConnectionName.
type OAuthCard struct {
	Text                  string                 `json:"text,omitempty"`
	ConnectionName        string                 `json:"connectionName,omitempty"`
	Buttons               []CardAction           `json:"buttons,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty"`
}

// SigninCard is the plain-link fallback for channels without OAuthCard support.
type SigninCard struct {
	Text    string       `json:"text,omitempty"`
	Buttons []CardAction `json:"buttons,omitempty"`
}

// NewOAuthCardAttachment wraps card in an Attachment.
func NewOAuthCardAttachment(card *OAuthCard) Attachment {
	return Attachment{ContentType: ContentTypeOAuthCard, Content: card}
}

// NewSigninCardAttachment wraps card in an Attachment.
func NewSigninCardAttachment(card *SigninCard) Attachment {
	return Attachment{ContentType: ContentTypeSigninCard, Content: card}
}
