package activity

// Well-known channel ids.
const (
	ChannelEmulator         = "emulator"
	ChannelMSTeams          = "msteams"
	ChannelCortana          = "cortana"
	ChannelSkype            = "skype"
	ChannelSkypeForBusiness = "skypeforbusiness"
	ChannelDirectLine       = "directline"
	ChannelWebChat          = "webchat"
	ChannelTest             = "test"
)
