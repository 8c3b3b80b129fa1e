// Package message defines agent identity and the immutable message envelope
// exchanged between agents.
package message

import (
	"time"

	"github.com/google/uuid"
)

// AgentID identifies one agent within a runtime. It is opaque to callers.
type AgentID string

// NewAgentID generates a fresh random identifier.
func NewAgentID() AgentID { return AgentID(uuid.NewString()) }

func (id AgentID) String() string { return string(id) }

// IsZero reports whether id is empty.
func (id AgentID) IsZero() bool { return id == "" }

// NewConversationID generates a correlation token for a new conversation.
func NewConversationID() string { return "conv_" + uuid.NewString() }

// Message is an envelope from one agent to another. All fields are
// unexported; a Message cannot change once New returns it.
type Message struct {
	id             string
	sender         AgentID
	receiver       AgentID
	performative   Performative
	content        []byte
	conversationID string
	timestamp      time.Time
}

// Option customises a message under construction.
type Option func(*Message)

// WithConversation sets the conversation correlation token.
func WithConversation(id string) Option {
	return func(m *Message) { m.conversationID = id }
}

// WithTimestamp overrides the creation timestamp.
func WithTimestamp(ts time.Time) Option {
	return func(m *Message) { m.timestamp = ts.UTC() }
}

// WithID overrides the generated message id. Used when decoding.
func WithID(id string) Option {
	return func(m *Message) { m.id = id }
}

// New builds a message. The content slice is copied.
func New(sender, receiver AgentID, p Performative, content []byte, opts ...Option) Message {
	m := Message{
		id:           "msg_" + uuid.NewString(),
		sender:       sender,
		receiver:     receiver,
		performative: p,
		content:      cloneBytes(content),
		timestamp:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// NewText builds a message with a string payload.
func NewText(sender, receiver AgentID, p Performative, content string, opts ...Option) Message {
	return New(sender, receiver, p, []byte(content), opts...)
}

func (m Message) ID() string { return m.id }
func (m Message) Sender() AgentID { return m.sender }
func (m Message) Receiver() AgentID { return m.receiver }
func (m Message) Performative() Performative { return m.performative }
func (m Message) ConversationID() string { return m.conversationID }
func (m Message) Timestamp() time.Time { return m.timestamp }

// Content returns a copy of the payload.
func (m Message) Content() []byte { return cloneBytes(m.content) }

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.content) }

// IsZero reports whether m is the zero Message.
func (m Message) IsZero() bool { return m.id == "" && m.sender == "" && m.receiver == "" }

// Reply builds a response addressed to the sender of m, carrying the same
// conversation id. A conversation id is minted if m had none.
func (m Message) Reply(p Performative, content []byte, opts ...Option) Message {
	conv := m.conversationID
	if conv == "" {
		conv = NewConversationID()
	}
	opts = append([]Option{WithConversation(conv)}, opts...)
	return New(m.receiver, m.sender, p, content, opts...)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
