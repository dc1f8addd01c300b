package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKey(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		assert.Equal(t, ConversationKey("alice", "bob"), ConversationKey("bob", "alice"))
	})

	t.Run("lexicographic layout", func(t *testing.T) {
		assert.Equal(t, "dm:alice:bob", ConversationKey("bob", "alice"))
	})

	t.Run("distinct pairs get distinct keys", func(t *testing.T) {
		assert.NotEqual(t, ConversationKey("alice", "bob"), ConversationKey("alice", "carol"))
	})
}

func TestConversationParticipants(t *testing.T) {
	conv := Conversation{ConversationID: "dm:alice:bob", User1: "alice", User2: "bob"}

	t.Run("has participant", func(t *testing.T) {
		assert.True(t, conv.HasParticipant("alice"))
		assert.True(t, conv.HasParticipant("bob"))
		assert.False(t, conv.HasParticipant("carol"))
		assert.False(t, conv.HasParticipant(""))
	})

	t.Run("other participant", func(t *testing.T) {
		assert.Equal(t, "bob", conv.OtherParticipant("alice"))
		assert.Equal(t, "alice", conv.OtherParticipant("bob"))
		assert.Equal(t, "", conv.OtherParticipant("carol"))
	})

	t.Run("participants pair", func(t *testing.T) {
		assert.Equal(t, []string{"alice", "bob"}, conv.Participants())
	})
}

func TestSortConversations(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	withLast := func(id string, ts time.Time, msgID int64) Conversation {
		return Conversation{
			ConversationID: id,
			LastMessage:    &Message{ID: msgID, Timestamp: ts},
		}
	}

	t.Run("newest last message first", func(t *testing.T) {
		cs := []Conversation{
			withLast("old", base, 1),
			withLast("new", base.Add(time.Hour), 2),
		}
		SortConversations(cs)
		assert.Equal(t, "new", cs[0].ConversationID)
	})

	t.Run("empty conversations sort after active ones", func(t *testing.T) {
		cs := []Conversation{
			{ConversationID: "empty", CreatedAt: base.Add(2 * time.Hour)},
			withLast("active", base, 1),
		}
		SortConversations(cs)
		assert.Equal(t, "active", cs[0].ConversationID)
		assert.Equal(t, "empty", cs[1].ConversationID)
	})

	t.Run("empty conversations order by creation time", func(t *testing.T) {
		cs := []Conversation{
			{ConversationID: "older", CreatedAt: base},
			{ConversationID: "newer", CreatedAt: base.Add(time.Minute)},
		}
		SortConversations(cs)
		assert.Equal(t, "newer", cs[0].ConversationID)
	})

	t.Run("equal timestamps break ties by id", func(t *testing.T) {
		cs := []Conversation{
			withLast("low", base, 10),
			withLast("high", base, 20),
		}
		SortConversations(cs)
		assert.Equal(t, "high", cs[0].ConversationID)
	})
}

func TestStoryPost(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	t.Run("newest image wins", func(t *testing.T) {
		post := &StoryPost{Images: []StoryImage{
			{URL: "a", AddedAt: base},
			{URL: "c", AddedAt: base.Add(2 * time.Hour)},
			{URL: "b", AddedAt: base.Add(time.Hour)},
		}}
		newest, ok := post.NewestImage()
		require.True(t, ok)
		assert.Equal(t, "c", newest.URL)
	})

	t.Run("no images means no newest and not active", func(t *testing.T) {
		post := &StoryPost{}
		_, ok := post.NewestImage()
		assert.False(t, ok)
		assert.False(t, post.Active(base))
	})

	t.Run("active while newest image inside window", func(t *testing.T) {
		post := &StoryPost{Images: []StoryImage{{URL: "a", AddedAt: base}}}
		assert.True(t, post.Active(base.Add(StoryRetention-time.Second)))
		assert.False(t, post.Active(base.Add(StoryRetention)))
	})

	t.Run("fresh image revives an aging post", func(t *testing.T) {
		post := &StoryPost{Images: []StoryImage{
			{URL: "old", AddedAt: base.Add(-30 * time.Hour)},
			{URL: "new", AddedAt: base},
		}}
		assert.True(t, post.Active(base.Add(time.Hour)))
	})
}

func TestEventPartitionKey(t *testing.T) {
	t.Run("conversation events key by conversation", func(t *testing.T) {
		ev := Event{Kind: EventMessageNew, ConversationID: "dm:a:b"}
		assert.Equal(t, "dm:a:b", ev.PartitionKey())
	})

	t.Run("story events key by owner", func(t *testing.T) {
		ev := Event{Kind: EventStory, OwnerID: "alice"}
		assert.Equal(t, "alice", ev.PartitionKey())
	})

	t.Run("kind is the fallback", func(t *testing.T) {
		ev := Event{Kind: EventTyping}
		assert.Equal(t, "typing", ev.PartitionKey())
	})
}
