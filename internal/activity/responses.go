package activity

import (
	"encoding/json"
	"fmt"
)

// InvokeResponse is the synchronous reply to an invoke activity, and the
// aggregate reply for expectReplies delivery.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// IsSuccessStatusCode reports whether Status is in the 2xx range.
func (r *InvokeResponse) IsSuccessStatusCode() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// InvokeResponseOf is an InvokeResponse whose body has a concrete type.
type InvokeResponseOf[T any] struct {
	Status int `json:"status"`
	Body   T   `json:"body,omitempty"`
}

// IsSuccessStatusCode reports whether Status is in the 2xx range.
func (r *InvokeResponseOf[T]) IsSuccessStatusCode() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// DecodeInvokeResponse converts an untyped response into one with body type T.
// The body is round-tripped through JSON unless it already has type T.
func DecodeInvokeResponse[T any](r *InvokeResponse) (*InvokeResponseOf[T], error) {
	if r == nil {
		return nil, nil
	}
	out := &InvokeResponseOf[T]{Status: r.Status}
	if r.Body == nil {
		return out, nil
	}
	if typed, ok := r.Body.(T); ok {
		out.Body = typed
		return out, nil
	}
	var data []byte
	switch b := r.Body.(type) {
	case json.RawMessage:
		data = b
	case []byte:
		data = b
	default:
		enc, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding invoke response body: %w", err)
		}
		data = enc
	}
	if err := json.Unmarshal(data, &out.Body); err != nil {
		return nil, fmt.Errorf("decoding invoke response body: %w", err)
	}
	return out, nil
}

// ResourceResponse carries the id the channel assigned to a sent activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// ExpectedReplies is the body of an expectReplies response.
type ExpectedReplies struct {
	Activities []*Activity `json:"activities"`
}

// ConversationParameters describes a conversation to create.
type ConversationParameters struct {
	IsGroup     bool             `json:"isGroup,omitempty"`
	Bot         *ChannelAccount  `json:"bot,omitempty"`
	Members     []ChannelAccount `json:"members,omitempty"`
	TopicName   string           `json:"topicName,omitempty"`
	TenantID    string           `json:"tenantId,omitempty"`
	Activity    *Activity        `json:"activity,omitempty"`
	ChannelData any              `json:"channelData,omitempty"`
}

// ConversationResourceResponse is returned by a create-conversation call.
type ConversationResourceResponse struct {
	ActivityID string `json:"activityId,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
	ID         string `json:"id"`
}
