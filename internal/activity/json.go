package activity

import (
	"encoding/json"
	"fmt"
)

// knownActivityFields lists every JSON member bound to an Activity field.
// Anything else lands in Activity.Extra.
var knownActivityFields = map[string]struct{}{
	"type": {}, "id": {}, "timestamp": {}, "localTimestamp": {}, "serviceUrl": {},
	"channelId": {}, "from": {}, "conversation": {}, "recipient": {}, "textFormat": {},
	"text": {}, "inputHint": {}, "locale": {}, "attachments": {}, "entities": {},
	"channelData": {}, "replyToId": {}, "name": {}, "value": {}, "valueType": {},
	"relatesTo": {}, "code": {}, "deliveryMode": {}, "callerId": {},
	"membersAdded": {}, "membersRemoved": {},
}

type activityAlias Activity

// activityWire keeps value and channelData as raw JSON on decode so numeric
// payloads are not widened to float64 before the caller picks a type.
type activityWire struct {
	*activityAlias
	Value       json.RawMessage `json:"value,omitempty"`
	ChannelData json.RawMessage `json:"channelData,omitempty"`
}

// MarshalJSON encodes the activity, merging Extra members that do not collide
// with modelled fields.
func (a Activity) MarshalJSON() ([]byte, error) {
	alias := activityAlias(a)
	base, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}
	if len(a.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(a.Extra)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range a.Extra {
		if _, known := knownActivityFields[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes an activity and captures unknown members in Extra.
func (a *Activity) UnmarshalJSON(data []byte) error {
	wire := activityWire{activityAlias: (*activityAlias)(a)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decoding activity: %w", err)
	}
	a.Value = nil
	if len(wire.Value) > 0 && string(wire.Value) != "null" {
		a.Value = wire.Value
	}
	a.ChannelData = nil
	if len(wire.ChannelData) > 0 && string(wire.ChannelData) != "null" {
		a.ChannelData = wire.ChannelData
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decoding activity: %w", err)
	}
	a.Extra = nil
	for k, v := range all {
		if _, known := knownActivityFields[k]; known {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]json.RawMessage)
		}
		a.Extra[k] = v
	}
	return nil
}

// MarshalJSON flattens Properties next to the entity type.
func (e Entity) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(e.Properties)+1)
	for k, v := range e.Properties {
		m[k] = v
	}
	t, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	m["type"] = t
	return json.Marshal(m)
}

// UnmarshalJSON splits the entity type from its remaining members.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding entity: %w", err)
	}
	e.Type = ""
	if raw, ok := m["type"]; ok {
		if err := json.Unmarshal(raw, &e.Type); err != nil {
			return fmt.Errorf("decoding entity type: %w", err)
		}
		delete(m, "type")
	}
	e.Properties = nil
	if len(m) > 0 {
		e.Properties = m
	}
	return nil
}
