package model

import (
	"sort"
	"time"
)

// User is a profile record keyed by the identity provider's stable user id.
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Bio       string    `json:"bio"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRef is the denormalized snippet of a replied-to message carried on
// the reply itself, so rendering a reply never needs a second lookup.
type MessageRef struct {
	ID       int64  `json:"id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// Message is one entry of a conversation's append-only log. Immutable after
// append except for the read flag. IDs are snowflakes, so ordering by ID is
// ordering by commit time with sequence-number tie-break.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Read           bool        `json:"read"`
	Timestamp      time.Time   `json:"timestamp"`
	ReplyTo        *MessageRef `json:"reply_to,omitempty"`
}

// Conversation is a two-party chat. LastMessage is a projection kept in the
// same batch as every log append.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	User1          string    `json:"user1"`
	User2          string    `json:"user2"`
	CreatedAt      time.Time `json:"created_at"`
	LastMessage    *Message  `json:"last_message,omitempty"`
	UnreadCount    int64     `json:"unread_count,omitempty"`
}

// ConversationKey derives the deterministic conversation id for an unordered
// pair of users. Both participants compute the same key, so concurrent
// creation attempts collide on it instead of producing duplicates.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1 == userID || c.User2 == userID)
}

// OtherParticipant returns the participant that is not userID. Empty string
// when userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.User1:
		return c.User2
	case c.User2:
		return c.User1
	}
	return ""
}

func (c *Conversation) Participants() []string {
	return []string{c.User1, c.User2}
}

// SortConversations orders by last message time descending. Conversations
// that have no messages yet sort after all that do, newest-created first.
func SortConversations(cs []Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		li, lj := cs[i].LastMessage, cs[j].LastMessage
		switch {
		case li == nil && lj == nil:
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		case li == nil:
			return false
		case lj == nil:
			return true
		}
		if !li.Timestamp.Equal(lj.Timestamp) {
			return li.Timestamp.After(lj.Timestamp)
		}
		return li.ID > lj.ID
	})
}

// TypingState is ephemeral and last-write-wins. Never persisted.
type TypingState struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}
