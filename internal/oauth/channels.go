package oauth

import "github.com/vivars7/skillrelay/internal/activity"

// channels that cannot render an OAuthCard and get a SigninCard instead.
var signinCardOnly = map[string]bool{
	activity.ChannelCortana:          true,
	activity.ChannelSkype:            true,
	activity.ChannelSkypeForBusiness: true,
}

// channels whose OAuthCard button must carry the sign-in link.
var requiresSignInLink = map[string]bool{
	activity.ChannelMSTeams: true,
}

// SupportsOAuthCard reports whether channelID renders OAuthCards.
func SupportsOAuthCard(channelID string) bool {
	return !signinCardOnly[channelID]
}

// RequiresSignInLink reports whether channelID needs the raw sign-in link
// on the OAuthCard button.
func RequiresSignInLink(channelID string) bool {
	return requiresSignInLink[channelID]
}
