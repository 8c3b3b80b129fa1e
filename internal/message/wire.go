package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireVersion is the version of the serialized message shape.
const WireVersion = 1

// wireMessage fixes the field order of the serialized form.
type wireMessage struct {
	Version        int          `json:"version"`
	ID             string       `json:"id"`
	Sender         AgentID      `json:"sender"`
	Receiver       AgentID      `json:"receiver"`
	Performative   Performative `json:"performative"`
	Content        []byte       `json:"content"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Encode serializes m for a transport boundary.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(wireMessage{
		Version:        WireVersion,
		ID:             m.id,
		Sender:         m.sender,
		Receiver:       m.receiver,
		Performative:   m.performative,
		Content:        m.content,
		ConversationID: m.conversationID,
		Timestamp:      m.timestamp,
	})
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("message: decode: %w", err)
	}
	if w.Version != WireVersion {
		return Message{}, fmt.Errorf("message: unsupported wire version %d", w.Version)
	}
	if w.Sender == "" || w.Receiver == "" {
		return Message{}, fmt.Errorf("message: decode: sender and receiver are required")
	}
	if !w.Performative.Valid() {
		return Message{}, fmt.Errorf("message: decode: missing performative")
	}
	return New(w.Sender, w.Receiver, w.Performative, w.Content,
		WithID(w.ID),
		WithConversation(w.ConversationID),
		WithTimestamp(w.Timestamp),
	), nil
}

// MarshalJSON encodes m using the wire shape.
func (m Message) MarshalJSON() ([]byte, error) { return Encode(m) }

// UnmarshalJSON decodes the wire shape into m.
func (m *Message) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}
