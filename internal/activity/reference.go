package activity

import "time"

// Roles carried in ChannelAccount.Role.
const (
	RoleUser  = "user"
	RoleBot   = "bot"
	RoleSkill = "skill"
)

// ContinueConversationEvent names the synthetic event used to resume a
// conversation out of band.
const ContinueConversationEvent = "ContinueConversation"

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

func (c *ChannelAccount) clone() *ChannelAccount {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	IsGroup          bool   `json:"isGroup,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	AADObjectID      string `json:"aadObjectId,omitempty"`
	Role             string `json:"role,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

func (c *ConversationAccount) clone() *ConversationAccount {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ConversationReference is the durable return address of a conversation.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	Locale       string               `json:"locale,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
}

// Clone returns a deep copy of r.
func (r ConversationReference) Clone() ConversationReference {
	r.User = r.User.clone()
	r.Bot = r.Bot.clone()
	r.Conversation = r.Conversation.clone()
	return r
}

// ConversationID returns the referenced conversation id, or "" when unset.
func (r ConversationReference) ConversationID() string {
	if r.Conversation == nil {
		return ""
	}
	return r.Conversation.ID
}

// ContinuationActivity builds the synthetic event a proactive turn starts
// from. The returned activity is addressed as if it came from the user.
func (r ConversationReference) ContinuationActivity() *Activity {
	now := time.Now().UTC()
	a := &Activity{
		Type:      TypeEvent,
		Name:      ContinueConversationEvent,
		ID:        NewID(),
		Timestamp: &now,
	}
	ref := r.Clone()
	// the reference's activity id must not overwrite the fresh event id
	ref.ActivityID = ""
	a.ApplyConversationReference(ref, true)
	rel := r.Clone()
	a.RelatesTo = &rel
	return a
}
