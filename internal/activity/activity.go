// Package activity defines the message envelope that flows through every turn:
// the Activity itself, its return address (ConversationReference), card
// attachments used for sign-in, token carriers and synchronous reply shapes.
package activity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Type is the activity type discriminator.
type Type string

// Activity types.
const (
	TypeMessage            Type = "message"
	TypeEvent              Type = "event"
	TypeInvoke             Type = "invoke"
	TypeInvokeResponse     Type = "invokeResponse"
	TypeTrace              Type = "trace"
	TypeDelay              Type = "delay"
	TypeTyping             Type = "typing"
	TypeCommand            Type = "command"
	TypeCommandResult      Type = "commandResult"
	TypeConversationUpdate Type = "conversationUpdate"
	TypeEndOfConversation  Type = "endOfConversation"
)

// DeliveryMode controls how replies to an inbound activity are delivered.
type DeliveryMode string

// Delivery modes.
const (
	DeliveryNormal        DeliveryMode = "normal"
	DeliveryExpectReplies DeliveryMode = "expectReplies"
)

// Input hints.
const (
	InputHintAcceptingInput = "acceptingInput"
	InputHintIgnoringInput  = "ignoringInput"
	InputHintExpectingInput = "expectingInput"
)

// End of conversation codes.
const (
	EndCodeUnknown                 = "unknown"
	EndCodeCompletedSuccessfully   = "completedSuccessfully"
	EndCodeUserCancelled           = "userCancelled"
	EndCodeBotTimedOut             = "botTimedOut"
	EndCodeBotIssuedInvalidMessage = "botIssuedInvalidMessage"
	EndCodeChannelFailed           = "channelFailed"
)

// CallerIDBotToBotPrefix prefixes Activity.CallerID when the caller is another bot.
const CallerIDBotToBotPrefix = "botToBot:"

// Activity is a single protocol message. Fields that are not modelled here
// survive a decode/encode cycle through Extra.
type Activity struct {
	Type           Type                   `json:"type,omitempty"`
	ID             string                 `json:"id,omitempty"`
	Timestamp      *time.Time             `json:"timestamp,omitempty"`
	LocalTimestamp *time.Time             `json:"localTimestamp,omitempty"`
	ServiceURL     string                 `json:"serviceUrl,omitempty"`
	ChannelID      string                 `json:"channelId,omitempty"`
	From           *ChannelAccount        `json:"from,omitempty"`
	Conversation   *ConversationAccount   `json:"conversation,omitempty"`
	Recipient      *ChannelAccount        `json:"recipient,omitempty"`
	TextFormat     string                 `json:"textFormat,omitempty"`
	Text           string                 `json:"text,omitempty"`
	InputHint      string                 `json:"inputHint,omitempty"`
	Locale         string                 `json:"locale,omitempty"`
	Attachments    []Attachment           `json:"attachments,omitempty"`
	Entities       []Entity               `json:"entities,omitempty"`
	ChannelData    any                    `json:"channelData,omitempty"`
	ReplyToID      string                 `json:"replyToId,omitempty"`
	Name           string                 `json:"name,omitempty"`
	Value          any                    `json:"value,omitempty"`
	ValueType      string                 `json:"valueType,omitempty"`
	RelatesTo      *ConversationReference `json:"relatesTo,omitempty"`
	Code           string                 `json:"code,omitempty"`
	DeliveryMode   DeliveryMode           `json:"deliveryMode,omitempty"`
	CallerID       string                 `json:"callerId,omitempty"`
	MembersAdded   []ChannelAccount       `json:"membersAdded,omitempty"`
	MembersRemoved []ChannelAccount       `json:"membersRemoved,omitempty"`

	// Extra holds JSON members that have no field above.
	Extra map[string]json.RawMessage `json:"-"`
}

// Entity is loosely typed metadata attached to an activity (mentions, places, ...).
type Entity struct {
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"-"`
}

// NewMessage returns a message activity carrying text.
func NewMessage(text string) *Activity {
	return &Activity{Type: TypeMessage, Text: text}
}

// NewTrace returns a trace activity. Trace activities only reach the emulator.
func NewTrace(name string, value any, valueType, label string) *Activity {
	a := &Activity{
		Type:      TypeTrace,
		Name:      name,
		Value:     value,
		ValueType: valueType,
	}
	if label != "" {
		a.Text = label
	}
	return a
}

// NewDelay returns a delay activity that pauses outbound delivery for d.
func NewDelay(d time.Duration) *Activity {
	return &Activity{Type: TypeDelay, Value: d.Milliseconds()}
}

// NewInvokeResponse wraps an InvokeResponse in an invokeResponse activity.
func NewInvokeResponse(status int, body any) *Activity {
	return &Activity{
		Type:  TypeInvokeResponse,
		Value: &InvokeResponse{Status: status, Body: body},
	}
}

// GetConversationReference snapshots the addressing of an inbound activity.
func (a *Activity) GetConversationReference() ConversationReference {
	ref := ConversationReference{
		User:         a.From.clone(),
		Bot:          a.Recipient.clone(),
		Conversation: a.Conversation.clone(),
		ChannelID:    a.ChannelID,
		Locale:       a.Locale,
		ServiceURL:   a.ServiceURL,
	}
	// directline and webchat assign ids to conversationUpdate activities that
	// cannot be replied to.
	if a.Type != TypeConversationUpdate || (a.ChannelID != ChannelDirectLine && a.ChannelID != ChannelWebChat) {
		ref.ActivityID = a.ID
	}
	return ref
}

// ApplyConversationReference rewrites the addressing fields of a from ref.
// For incoming activities the user becomes the sender; for outgoing ones the
// bot does and ReplyToID points back at the referenced activity.
func (a *Activity) ApplyConversationReference(ref ConversationReference, isIncoming bool) *Activity {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation.clone()
	if ref.Locale != "" {
		a.Locale = ref.Locale
	}

	if isIncoming {
		a.From = ref.User.clone()
		a.Recipient = ref.Bot.clone()
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
		return a
	}

	a.From = ref.Bot.clone()
	a.Recipient = ref.User.clone()
	if ref.ActivityID != "" {
		a.ReplyToID = ref.ActivityID
	}
	return a
}

// CreateReply builds a message addressed back to the sender of a.
func (a *Activity) CreateReply(text string) *Activity {
	now := time.Now().UTC()
	reply := &Activity{
		Type:         TypeMessage,
		Timestamp:    &now,
		From:         a.Recipient.clone(),
		Recipient:    a.From.clone(),
		ReplyToID:    a.ID,
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		Conversation: a.Conversation.clone(),
		Text:         text,
		Locale:       a.Locale,
	}
	return reply
}

// CreateTrace builds a trace activity addressed like a reply to a.
func (a *Activity) CreateTrace(name string, value any, valueType, label string) *Activity {
	t := a.CreateReply("")
	t.Type = TypeTrace
	t.Name = name
	t.Text = label
	t.Value = value
	t.ValueType = valueType
	return t
}

// Clone returns a copy of a that shares no addressing structs with it.
// Value and ChannelData are copied by reference.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.From = a.From.clone()
	c.Recipient = a.Recipient.clone()
	c.Conversation = a.Conversation.clone()
	if a.RelatesTo != nil {
		rel := a.RelatesTo.Clone()
		c.RelatesTo = &rel
	}
	if a.Timestamp != nil {
		ts := *a.Timestamp
		c.Timestamp = &ts
	}
	if a.LocalTimestamp != nil {
		ts := *a.LocalTimestamp
		c.LocalTimestamp = &ts
	}
	c.Attachments = append([]Attachment(nil), a.Attachments...)
	c.Entities = append([]Entity(nil), a.Entities...)
	c.MembersAdded = append([]ChannelAccount(nil), a.MembersAdded...)
	c.MembersRemoved = append([]ChannelAccount(nil), a.MembersRemoved...)
	if a.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(a.Extra))
		for k, v := range a.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// ValueAs decodes the opaque Value into out. Values that already have the
// target type are copied through JSON as well, so out never aliases a.Value.
func (a *Activity) ValueAs(out any) error {
	if a.Value == nil {
		return fmt.Errorf("activity %q has no value", a.Type)
	}
	var data []byte
	switch v := a.Value.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding activity value: %w", err)
		}
		data = b
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding activity value: %w", err)
	}
	return nil
}

// DelayDuration interprets Value as a millisecond count for delay activities.
func (a *Activity) DelayDuration() (time.Duration, error) {
	var ms float64
	switch v := a.Value.(type) {
	case nil:
		return 0, nil
	case int:
		ms = float64(v)
	case int64:
		ms = float64(v)
	case float64:
		ms = v
	case json.RawMessage:
		if err := json.Unmarshal(v, &ms); err != nil {
			return 0, fmt.Errorf("invalid delay value %s: %w", string(v), err)
		}
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid delay value %q: %w", v, err)
		}
		ms = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid delay value %q: %w", v, err)
		}
		ms = f
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported delay value type %T", a.Value)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// NewID returns a fresh opaque, URL-safe identifier.
func NewID() string {
	return uuid.NewString()
}
