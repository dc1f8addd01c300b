package main

import (
	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

type SubKind string

const (
	SubConversations SubKind = "conversations"
	SubMessages      SubKind = "messages"
	SubTyping        SubKind = "typing"
	SubStories       SubKind = "stories"
)

func validKind(k SubKind) bool {
	switch k {
	case SubConversations, SubMessages, SubTyping, SubStories:
		return true
	}
	return false
}

// subscription is one (collection, filter, cursor) tuple owned by a
// connection. Until the snapshot is delivered it buffers incoming diffs in
// pending; highWater is the snapshot's newest message id, used to drop
// buffered diffs the snapshot already contains.
type subscription struct {
	id             string
	kind           SubKind
	client         *Client
	userID         string
	conversationID string

	// stories only: owners whose posts are currently visible. Grows live
	// when a new conversation adds a partner.
	visible map[string]struct{}

	live      bool
	highWater int64
	pending   []*model.Event
}

// covered reports whether the snapshot already contains this diff. Message
// appends are identified by snowflake id against the snapshot's high-water
// mark; the other kinds are idempotent upserts, so a duplicate is harmless
// and never suppressed.
func (s *subscription) covered(ev *model.Event) bool {
	return s.kind == SubMessages &&
		ev.Kind == model.EventMessageNew &&
		ev.Message != nil &&
		ev.Message.ID <= s.highWater
}

// wants re-evaluates the subscription's filter against an event. A diff whose
// filter excludes it is never delivered, no matter how it was routed.
func (s *subscription) wants(ev *model.Event) bool {
	switch s.kind {
	case SubMessages:
		if ev.Kind != model.EventMessageNew && ev.Kind != model.EventMessageRead {
			return false
		}
		return ev.ConversationID == s.conversationID
	case SubTyping:
		return ev.Kind == model.EventTyping && ev.ConversationID == s.conversationID
	case SubConversations:
		if ev.Kind != model.EventConversation {
			return false
		}
		for _, p := range ev.Participants {
			if p == s.userID {
				return true
			}
		}
		return false
	case SubStories:
		if ev.Kind != model.EventStory {
			return false
		}
		if ev.OwnerID == s.userID {
			return true
		}
		_, ok := s.visible[ev.OwnerID]
		return ok
	}
	return false
}

const (
	frameSnapshot = "snapshot"
	frameEvent    = "event"
	frameError    = "error"
)

// frame is the unit written to a websocket client, tagged with the client's
// subscription id.
type frame struct {
	Sub      string           `json:"sub"`
	Type     string           `json:"type"`
	Code     errs.Code        `json:"code,omitempty"`
	Error    string           `json:"error,omitempty"`
	Event    *model.Event     `json:"event,omitempty"`
	Snapshot *snapshotPayload `json:"snapshot,omitempty"`
}

type snapshotPayload struct {
	Conversations []model.Conversation `json:"conversations,omitempty"`
	Messages      []model.Message      `json:"messages,omitempty"`
	Typing        map[string]bool      `json:"typing,omitempty"`
	Stories       []model.StoryPost    `json:"stories,omitempty"`
}
