package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	stories       map[string]*model.StoryPost
	partners      map[string][]string

	// When set, ListMessages blocks until the channel closes. Lets tests
	// queue diffs while a snapshot is still loading.
	msgBlock chan struct{}
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, errs.InvalidConversation("unknown conversation")
	}
	return conv, nil
}

func (f *fakeStore) ListConversations(_ context.Context, userID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, conv := range f.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMessages(_ context.Context, convID, viewerID string, _ int) ([]model.Message, error) {
	if f.msgBlock != nil {
		<-f.msgBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[convID]
	if !ok {
		return nil, errs.InvalidConversation("unknown conversation")
	}
	if !conv.HasParticipant(viewerID) {
		return nil, errs.NotParticipant("not a participant of this conversation")
	}
	return f.messages[convID], nil
}

func (f *fakeStore) ListVisibleStories(_ context.Context, viewerID string) ([]model.StoryPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StoryPost
	for _, owner := range append(f.partners[viewerID], viewerID) {
		if post, ok := f.stories[owner]; ok && post.Active(time.Now()) {
			out = append(out, *post)
		}
	}
	return out, nil
}

func (f *fakeStore) Partners(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partners[userID], nil
}

func (f *fakeStore) StoryFor(_ context.Context, ownerID string) (*model.StoryPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.stories[ownerID]
	if !ok {
		return nil, errs.NotFound("no story for user")
	}
	return post, nil
}

type fakeTyping struct {
	snapshot map[string]bool
}

func (f *fakeTyping) TypingSnapshot(_ context.Context, _ string) (map[string]bool, error) {
	return f.snapshot, nil
}

type fakePresence struct {
	mu      sync.Mutex
	online  map[string]int
	offline map[string]int
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]int), offline: make(map[string]int)}
}

func (f *fakePresence) SetOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID]++
	return nil
}

func (f *fakePresence) SetOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline[userID]++
	return nil
}

func (f *fakePresence) offlineCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offline[userID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(userID string) *Client {
	return &Client{
		send:   make(chan []byte, 32),
		UserID: userID,
		subs:   make(map[string]*subscription),
	}
}

func startHub(t *testing.T, store SnapshotStore, typing TypingSource, presence Presence) *Hub {
	t.Helper()
	hub := NewHub(store, typing, presence, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func readFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return frame{}
	}
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func subscribe(hub *Hub, c *Client, id string, kind SubKind, convID string) {
	hub.subscribeCh <- &subscription{
		id:             id,
		kind:           kind,
		client:         c,
		userID:         c.UserID,
		conversationID: convID,
	}
}

func twoPartyStore() *fakeStore {
	return &fakeStore{
		conversations: map[string]*model.Conversation{
			"dm:alice:bob": {ConversationID: "dm:alice:bob", User1: "alice", User2: "bob"},
		},
		messages: map[string][]model.Message{
			"dm:alice:bob": {
				{ID: 2, ConversationID: "dm:alice:bob", SenderID: "bob", Content: "hi"},
				{ID: 1, ConversationID: "dm:alice:bob", SenderID: "alice", Content: "hello"},
			},
		},
		stories:  make(map[string]*model.StoryPost),
		partners: map[string][]string{"alice": {"bob"}, "bob": {"alice"}},
	}
}

func TestMessagesSubscription(t *testing.T) {
	t.Run("snapshot then live diff", func(t *testing.T) {
		store := twoPartyStore()
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		alice := newTestClient("alice")
		hub.register <- alice
		subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")

		snap := readFrame(t, alice)
		require.Equal(t, frameSnapshot, snap.Type)
		require.Len(t, snap.Snapshot.Messages, 2)
		assert.Equal(t, int64(2), snap.Snapshot.Messages[0].ID)

		hub.Dispatch(&model.Event{
			Kind:           model.EventMessageNew,
			ConversationID: "dm:alice:bob",
			Participants:   []string{"alice", "bob"},
			Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob", SenderID: "bob", Content: "new"},
		})

		ev := readFrame(t, alice)
		assert.Equal(t, frameEvent, ev.Type)
		assert.Equal(t, "s1", ev.Sub)
		require.NotNil(t, ev.Event.Message)
		assert.Equal(t, int64(3), ev.Event.Message.ID)
	})

	t.Run("diffs for other conversations are filtered out", func(t *testing.T) {
		store := twoPartyStore()
		store.conversations["dm:alice:carol"] = &model.Conversation{
			ConversationID: "dm:alice:carol", User1: "alice", User2: "carol",
		}
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		alice := newTestClient("alice")
		hub.register <- alice
		subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")
		readFrame(t, alice) // snapshot

		hub.Dispatch(&model.Event{
			Kind:           model.EventMessageNew,
			ConversationID: "dm:alice:carol",
			Message:        &model.Message{ID: 9, ConversationID: "dm:alice:carol"},
		})
		expectNoFrame(t, alice)
	})

	t.Run("buffered diffs inside the snapshot are dropped", func(t *testing.T) {
		store := twoPartyStore()
		store.msgBlock = make(chan struct{})
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		alice := newTestClient("alice")
		hub.register <- alice
		subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")

		// Snapshot is still loading; both diffs land in the pending buffer.
		hub.Dispatch(&model.Event{
			Kind:           model.EventMessageNew,
			ConversationID: "dm:alice:bob",
			Message:        &model.Message{ID: 2, ConversationID: "dm:alice:bob"},
		})
		hub.Dispatch(&model.Event{
			Kind:           model.EventMessageNew,
			ConversationID: "dm:alice:bob",
			Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob"},
		})
		close(store.msgBlock)

		snap := readFrame(t, alice)
		require.Equal(t, frameSnapshot, snap.Type)
		require.Len(t, snap.Snapshot.Messages, 2)

		// The snapshot already contains id 2; only id 3 may follow.
		ev := readFrame(t, alice)
		require.Equal(t, frameEvent, ev.Type)
		assert.Equal(t, int64(3), ev.Event.Message.ID)
		expectNoFrame(t, alice)
	})

	t.Run("non-participant gets an error frame", func(t *testing.T) {
		store := twoPartyStore()
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		carol := newTestClient("carol")
		hub.register <- carol
		subscribe(hub, carol, "s1", SubMessages, "dm:alice:bob")

		f := readFrame(t, carol)
		assert.Equal(t, frameError, f.Type)
		assert.Equal(t, errs.CodeNotParticipant, f.Code)

		// The failed subscription must not receive diffs.
		hub.Dispatch(&model.Event{
			Kind:           model.EventMessageNew,
			ConversationID: "dm:alice:bob",
			Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob"},
		})
		expectNoFrame(t, carol)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		store := twoPartyStore()
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		alice := newTestClient("alice")
		hub.register <- alice
		subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")
		readFrame(t, alice) // snapshot

		hub.cancelCh <- cancelSub{client: alice, id: "s1"}
		hub.Dispatch(&model.Event{
			Kind:           model.EventMessageNew,
			ConversationID: "dm:alice:bob",
			Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob"},
		})
		expectNoFrame(t, alice)
	})
}

func TestSubscribeValidation(t *testing.T) {
	store := twoPartyStore()
	hub := startHub(t, store, &fakeTyping{}, newFakePresence())

	alice := newTestClient("alice")
	hub.register <- alice

	t.Run("unknown kind", func(t *testing.T) {
		subscribe(hub, alice, "bad", SubKind("everything"), "")
		f := readFrame(t, alice)
		assert.Equal(t, frameError, f.Type)
		assert.Equal(t, errs.CodeInvalidArgument, f.Code)
	})

	t.Run("messages without conversation id", func(t *testing.T) {
		subscribe(hub, alice, "s1", SubMessages, "")
		f := readFrame(t, alice)
		assert.Equal(t, frameError, f.Type)
		assert.Equal(t, errs.CodeInvalidArgument, f.Code)
	})

	t.Run("duplicate subscription id", func(t *testing.T) {
		subscribe(hub, alice, "dup", SubMessages, "dm:alice:bob")
		readFrame(t, alice) // snapshot
		subscribe(hub, alice, "dup", SubMessages, "dm:alice:bob")
		f := readFrame(t, alice)
		assert.Equal(t, frameError, f.Type)
		assert.Equal(t, errs.CodeAlreadyExists, f.Code)
	})
}

func TestConversationsSubscription(t *testing.T) {
	store := twoPartyStore()
	hub := startHub(t, store, &fakeTyping{}, newFakePresence())

	alice := newTestClient("alice")
	hub.register <- alice
	subscribe(hub, alice, "convs", SubConversations, "")

	snap := readFrame(t, alice)
	require.Equal(t, frameSnapshot, snap.Type)
	require.Len(t, snap.Snapshot.Conversations, 1)

	t.Run("participant receives upsert", func(t *testing.T) {
		hub.Dispatch(&model.Event{
			Kind:           model.EventConversation,
			ConversationID: "dm:alice:bob",
			Participants:   []string{"alice", "bob"},
			Conversation: &model.Conversation{
				ConversationID: "dm:alice:bob", User1: "alice", User2: "bob",
				LastMessage: &model.Message{ID: 3, Content: "new"},
			},
		})
		ev := readFrame(t, alice)
		assert.Equal(t, frameEvent, ev.Type)
		require.NotNil(t, ev.Event.Conversation)
		assert.Equal(t, int64(3), ev.Event.Conversation.LastMessage.ID)
	})

	t.Run("bystander conversations stay invisible", func(t *testing.T) {
		hub.Dispatch(&model.Event{
			Kind:           model.EventConversation,
			ConversationID: "dm:bob:carol",
			Participants:   []string{"bob", "carol"},
			Conversation: &model.Conversation{
				ConversationID: "dm:bob:carol", User1: "bob", User2: "carol",
			},
		})
		expectNoFrame(t, alice)
	})
}

func TestTypingSubscription(t *testing.T) {
	store := twoPartyStore()
	typing := &fakeTyping{snapshot: map[string]bool{"bob": true}}
	hub := startHub(t, store, typing, newFakePresence())

	alice := newTestClient("alice")
	hub.register <- alice
	subscribe(hub, alice, "typ", SubTyping, "dm:alice:bob")

	snap := readFrame(t, alice)
	require.Equal(t, frameSnapshot, snap.Type)
	assert.True(t, snap.Snapshot.Typing["bob"])

	hub.Dispatch(&model.Event{
		Kind:           model.EventTyping,
		ConversationID: "dm:alice:bob",
		Typing:         &model.TypingState{ConversationID: "dm:alice:bob", UserID: "bob", IsTyping: false},
	})
	ev := readFrame(t, alice)
	require.Equal(t, frameEvent, ev.Type)
	assert.False(t, ev.Event.Typing.IsTyping)
}

func TestStoriesSubscription(t *testing.T) {
	now := time.Now().UTC()

	t.Run("only visible owners come through", func(t *testing.T) {
		store := twoPartyStore()
		store.stories["bob"] = &model.StoryPost{
			StoryID: "sb", OwnerID: "bob", UpdatedAt: now,
			Images: []model.StoryImage{{URL: "b.png", AddedAt: now}},
		}
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		alice := newTestClient("alice")
		hub.register <- alice
		subscribe(hub, alice, "st", SubStories, "")

		snap := readFrame(t, alice)
		require.Equal(t, frameSnapshot, snap.Type)
		require.Len(t, snap.Snapshot.Stories, 1)

		hub.Dispatch(&model.Event{
			Kind: model.EventStory, OwnerID: "bob",
			Story: store.stories["bob"],
		})
		ev := readFrame(t, alice)
		assert.Equal(t, "bob", ev.Event.Story.OwnerID)

		// Carol shares no conversation with alice.
		hub.Dispatch(&model.Event{
			Kind: model.EventStory, OwnerID: "carol",
			Story: &model.StoryPost{StoryID: "sc", OwnerID: "carol"},
		})
		expectNoFrame(t, alice)
	})

	t.Run("new conversation widens visibility", func(t *testing.T) {
		store := twoPartyStore()
		store.stories["carol"] = &model.StoryPost{
			StoryID: "sc", OwnerID: "carol", UpdatedAt: now,
			Images: []model.StoryImage{{URL: "c.png", AddedAt: now}},
		}
		hub := startHub(t, store, &fakeTyping{}, newFakePresence())

		alice := newTestClient("alice")
		hub.register <- alice
		subscribe(hub, alice, "st", SubStories, "")
		readFrame(t, alice) // snapshot, no stories

		hub.Dispatch(&model.Event{
			Kind:           model.EventConversation,
			ConversationID: "dm:alice:carol",
			Participants:   []string{"alice", "carol"},
			Conversation: &model.Conversation{
				ConversationID: "dm:alice:carol", User1: "alice", User2: "carol",
			},
		})

		// The hub fetches carol's active post for the newly visible owner.
		ev := readFrame(t, alice)
		require.Equal(t, frameEvent, ev.Type)
		require.NotNil(t, ev.Event.Story)
		assert.Equal(t, "carol", ev.Event.Story.OwnerID)
	})
}

func TestSlowClientDropped(t *testing.T) {
	store := twoPartyStore()
	presence := newFakePresence()
	hub := startHub(t, store, &fakeTyping{}, presence)

	alice := &Client{
		send:   make(chan []byte, 1),
		UserID: "alice",
		subs:   make(map[string]*subscription),
	}
	hub.register <- alice
	subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")
	readFrame(t, alice) // snapshot

	// Fill the buffer so the next delivery cannot go through.
	alice.send <- []byte("{}")
	hub.Dispatch(&model.Event{
		Kind:           model.EventMessageNew,
		ConversationID: "dm:alice:bob",
		Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob"},
	})

	require.Eventually(t, func() bool {
		return presence.offlineCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond, "slow client was not dropped")
}

func TestSlowClientDroppedDuringSnapshotFlush(t *testing.T) {
	store := twoPartyStore()
	store.msgBlock = make(chan struct{})
	presence := newFakePresence()
	hub := startHub(t, store, &fakeTyping{}, presence)

	alice := &Client{
		send:   make(chan []byte, 1),
		UserID: "alice",
		subs:   make(map[string]*subscription),
	}
	hub.register <- alice
	subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")

	// Two deliverable diffs buffer behind the loading snapshot. Releasing it
	// makes the snapshot frame fill alice's only send slot, so the first
	// flushed diff drops her; the second must not be attempted on the closed
	// channel.
	hub.Dispatch(&model.Event{
		Kind:           model.EventMessageNew,
		ConversationID: "dm:alice:bob",
		Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob"},
	})
	hub.Dispatch(&model.Event{
		Kind:           model.EventMessageNew,
		ConversationID: "dm:alice:bob",
		Message:        &model.Message{ID: 4, ConversationID: "dm:alice:bob"},
	})
	close(store.msgBlock)

	require.Eventually(t, func() bool {
		return presence.offlineCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond, "slow client was not dropped")

	// The hub must still be serving other clients.
	bob := newTestClient("bob")
	hub.register <- bob
	subscribe(hub, bob, "s1", SubMessages, "dm:alice:bob")
	f := readFrame(t, bob)
	assert.Equal(t, frameSnapshot, f.Type)
}

func TestStoryFetchStopsAfterShutdown(t *testing.T) {
	store := twoPartyStore()
	store.stories["bob"] = &model.StoryPost{
		StoryID: "sb", OwnerID: "bob", UpdatedAt: time.Now().UTC(),
		Images: []model.StoryImage{{URL: "b.png", AddedAt: time.Now().UTC()}},
	}
	hub := NewHub(store, &fakeTyping{}, newFakePresence(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not shut down")
	}

	// With Run gone, nothing drains the events channel. Fill it so a blind
	// send would block forever.
	for len(hub.events) < cap(hub.events) {
		hub.events <- &model.Event{Kind: model.EventStory}
	}

	returned := make(chan struct{})
	go func() {
		hub.fetchStory("bob")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("fetchStory blocked after shutdown")
	}
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	store := twoPartyStore()
	presence := newFakePresence()
	hub := startHub(t, store, &fakeTyping{}, presence)

	alice := newTestClient("alice")
	hub.register <- alice
	subscribe(hub, alice, "s1", SubMessages, "dm:alice:bob")
	readFrame(t, alice) // snapshot

	hub.unregister <- alice

	require.Eventually(t, func() bool {
		return presence.offlineCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Channel is closed and nothing is delivered anymore.
	hub.Dispatch(&model.Event{
		Kind:           model.EventMessageNew,
		ConversationID: "dm:alice:bob",
		Message:        &model.Message{ID: 3, ConversationID: "dm:alice:bob"},
	})
	select {
	case _, ok := <-alice.send:
		assert.False(t, ok, "expected closed send channel")
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}
