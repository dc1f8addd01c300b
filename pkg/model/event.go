package model

import "time"

// EventKind discriminates change events on the fan-out bus.
type EventKind string

const (
	EventMessageNew   EventKind = "message.new"
	EventMessageRead  EventKind = "message.read"
	EventConversation EventKind = "conversation.upsert"
	EventStory        EventKind = "story.upsert"
	EventTyping       EventKind = "typing"
)

// Event is one committed change, published after the store write and fanned
// out to matching subscriptions. Exactly one payload pointer is set, chosen
// by Kind. Participants is carried so the gateway can evaluate per-user
// filters without a store round trip.
type Event struct {
	Kind           EventKind    `json:"kind"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Participants   []string     `json:"participants,omitempty"`
	OwnerID        string       `json:"owner_id,omitempty"`
	Message        *Message     `json:"message,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	Story          *StoryPost   `json:"story,omitempty"`
	Typing         *TypingState `json:"typing,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// PartitionKey groups events so that everything a single subscription can
// observe shares a Kafka partition, which preserves commit order per
// subscription.
func (e *Event) PartitionKey() string {
	if e.ConversationID != "" {
		return e.ConversationID
	}
	if e.OwnerID != "" {
		return e.OwnerID
	}
	return string(e.Kind)
}
