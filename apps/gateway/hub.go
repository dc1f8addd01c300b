package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/obs"
)

const snapshotTimeout = 10 * time.Second

// SnapshotStore is what the hub reads to answer a fresh subscription.
type SnapshotStore interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, convID, viewerID string, limit int) ([]model.Message, error)
	ListVisibleStories(ctx context.Context, viewerID string) ([]model.StoryPost, error)
	Partners(ctx context.Context, userID string) ([]string, error)
	StoryFor(ctx context.Context, ownerID string) (*model.StoryPost, error)
}

// TypingSource provides the typing snapshot for a conversation.
type TypingSource interface {
	TypingSnapshot(ctx context.Context, conversationID string) (map[string]bool, error)
}

// Presence marks users online/offline while they hold a connection.
type Presence interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

type cancelSub struct {
	client *Client
	id     string
}

type snapshotResult struct {
	sub       *subscription
	payload   *snapshotPayload
	highWater int64
	visible   map[string]struct{}
	err       error
}

// Hub owns every subscription on this gateway instance. A single goroutine
// (Run) serializes all registry mutation and all diff delivery, so diffs for
// one subscription go out in the order events arrive from the bus. Snapshot
// loads are the only store I/O and run in their own goroutines; their results
// come back through the ready channel.
type Hub struct {
	store    SnapshotStore
	typing   TypingSource
	presence Presence
	logger   *slog.Logger

	register    chan *Client
	unregister  chan *Client
	subscribeCh chan *subscription
	cancelCh    chan cancelSub
	ready       chan snapshotResult
	events      chan *model.Event
	done        chan struct{}

	clients        map[*Client]struct{}
	byConversation map[string]map[*subscription]struct{}
	byUser         map[string]map[*subscription]struct{}
	storySubs      map[*subscription]struct{}
}

func NewHub(store SnapshotStore, typing TypingSource, presence Presence, logger *slog.Logger) *Hub {
	return &Hub{
		store:          store,
		typing:         typing,
		presence:       presence,
		logger:         logger,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		subscribeCh:    make(chan *subscription),
		cancelCh:       make(chan cancelSub),
		ready:          make(chan snapshotResult),
		events:         make(chan *model.Event, 256),
		done:           make(chan struct{}),
		clients:        make(map[*Client]struct{}),
		byConversation: make(map[string]map[*subscription]struct{}),
		byUser:         make(map[string]map[*subscription]struct{}),
		storySubs:      make(map[*subscription]struct{}),
	}
}

// Dispatch hands a committed event to the hub. Called by the bus consumer
// and the typing feed.
func (h *Hub) Dispatch(ev *model.Event) {
	h.events <- ev
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			obs.ActiveConnections.Inc()
			if err := h.presence.SetOnline(ctx, client.UserID); err != nil {
				h.logger.Error("set online failed", "user", client.UserID, "error", err)
			}

		case client := <-h.unregister:
			h.removeClient(ctx, client)

		case sub := <-h.subscribeCh:
			h.handleSubscribe(sub)

		case req := <-h.cancelCh:
			if sub, ok := req.client.subs[req.id]; ok {
				h.removeSub(sub)
			}

		case res := <-h.ready:
			h.handleReady(res)

		case ev := <-h.events:
			h.handleEvent(ev)
		}
	}
}

func (h *Hub) handleSubscribe(sub *subscription) {
	if _, ok := h.clients[sub.client]; !ok {
		return
	}
	if sub.id == "" || !validKind(sub.kind) {
		h.sendTo(sub.client, &frame{Sub: sub.id, Type: frameError, Code: errs.CodeInvalidArgument, Error: "bad subscription"})
		return
	}
	if (sub.kind == SubMessages || sub.kind == SubTyping) && sub.conversationID == "" {
		h.sendTo(sub.client, &frame{Sub: sub.id, Type: frameError, Code: errs.CodeInvalidArgument, Error: "conversation_id is required"})
		return
	}
	if _, dup := sub.client.subs[sub.id]; dup {
		h.sendTo(sub.client, &frame{Sub: sub.id, Type: frameError, Code: errs.CodeAlreadyExists, Error: "subscription id in use"})
		return
	}

	sub.client.subs[sub.id] = sub
	switch sub.kind {
	case SubMessages, SubTyping:
		h.indexConversation(sub)
	case SubConversations:
		if h.byUser[sub.userID] == nil {
			h.byUser[sub.userID] = make(map[*subscription]struct{})
		}
		h.byUser[sub.userID][sub] = struct{}{}
	case SubStories:
		h.storySubs[sub] = struct{}{}
	}
	obs.ActiveSubscriptions.WithLabelValues(string(sub.kind)).Inc()

	go h.loadSnapshot(sub)
}

func (h *Hub) indexConversation(sub *subscription) {
	if h.byConversation[sub.conversationID] == nil {
		h.byConversation[sub.conversationID] = make(map[*subscription]struct{})
	}
	h.byConversation[sub.conversationID][sub] = struct{}{}
}

// loadSnapshot reads the initial state for a subscription outside the hub
// goroutine, then reports back through h.ready. Participant checks happen
// here: the store rejects non-participants before any snapshot leaves the
// server.
func (h *Hub) loadSnapshot(sub *subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	res := snapshotResult{sub: sub}
	switch sub.kind {
	case SubMessages:
		msgs, err := h.store.ListMessages(ctx, sub.conversationID, sub.userID, 0)
		if err != nil {
			res.err = err
			break
		}
		if len(msgs) > 0 {
			res.highWater = msgs[0].ID
		}
		res.payload = &snapshotPayload{Messages: msgs}

	case SubTyping:
		conv, err := h.store.GetConversation(ctx, sub.conversationID)
		if err != nil {
			res.err = err
			break
		}
		if !conv.HasParticipant(sub.userID) {
			res.err = errs.NotParticipant("not a participant of this conversation")
			break
		}
		snap, err := h.typing.TypingSnapshot(ctx, sub.conversationID)
		if err != nil {
			res.err = errs.StoreUnavailable("typing snapshot", err)
			break
		}
		res.payload = &snapshotPayload{Typing: snap}

	case SubConversations:
		list, err := h.store.ListConversations(ctx, sub.userID)
		if err != nil {
			res.err = err
			break
		}
		res.payload = &snapshotPayload{Conversations: list}

	case SubStories:
		partners, err := h.store.Partners(ctx, sub.userID)
		if err != nil {
			res.err = err
			break
		}
		visible := make(map[string]struct{}, len(partners))
		for _, p := range partners {
			visible[p] = struct{}{}
		}
		res.visible = visible
		stories, err := h.store.ListVisibleStories(ctx, sub.userID)
		if err != nil {
			res.err = err
			break
		}
		res.payload = &snapshotPayload{Stories: stories}
	}

	h.ready <- res
}

func (h *Hub) handleReady(res snapshotResult) {
	sub := res.sub
	if _, ok := h.clients[sub.client]; !ok {
		return
	}
	if sub.client.subs[sub.id] != sub {
		// Unsubscribed while the snapshot loaded.
		return
	}

	if res.err != nil {
		h.sendTo(sub.client, &frame{Sub: sub.id, Type: frameError, Code: errs.CodeOf(res.err), Error: res.err.Error()})
		h.removeSub(sub)
		return
	}

	sub.highWater = res.highWater
	if res.visible != nil {
		sub.visible = res.visible
	}
	if !h.send(sub, &frame{Sub: sub.id, Type: frameSnapshot, Snapshot: res.payload}) {
		return
	}

	// Flush diffs buffered while the snapshot loaded. A failed send means the
	// client was dropped mid-flush; its channel is closed, so stop here.
	for _, ev := range sub.pending {
		if sub.covered(ev) || !sub.wants(ev) {
			continue
		}
		if !h.send(sub, &frame{Sub: sub.id, Type: frameEvent, Event: ev}) {
			return
		}
	}
	sub.pending = nil
	sub.live = true
}

func (h *Hub) handleEvent(ev *model.Event) {
	switch ev.Kind {
	case model.EventMessageNew, model.EventMessageRead:
		h.fanout(h.byConversation[ev.ConversationID], SubMessages, ev)
	case model.EventTyping:
		h.fanout(h.byConversation[ev.ConversationID], SubTyping, ev)
	case model.EventConversation:
		for _, p := range ev.Participants {
			h.fanout(h.byUser[p], SubConversations, ev)
		}
		h.widenStoryVisibility(ev)
	case model.EventStory:
		for sub := range h.storySubs {
			h.dispatchTo(sub, ev)
		}
	}
}

func (h *Hub) fanout(set map[*subscription]struct{}, kind SubKind, ev *model.Event) {
	for sub := range set {
		if sub.kind != kind {
			continue
		}
		h.dispatchTo(sub, ev)
	}
}

func (h *Hub) dispatchTo(sub *subscription, ev *model.Event) {
	if !sub.live {
		sub.pending = append(sub.pending, ev)
		return
	}
	if sub.covered(ev) || !sub.wants(ev) {
		return
	}
	h.send(sub, &frame{Sub: sub.id, Type: frameEvent, Event: ev})
}

// widenStoryVisibility grows story subscriptions when a new conversation
// makes a new partner's posts visible, and fetches that partner's current
// post so the subscriber doesn't wait for the next publish.
func (h *Hub) widenStoryVisibility(ev *model.Event) {
	if ev.Conversation == nil {
		return
	}
	fetch := make(map[string]struct{})
	for sub := range h.storySubs {
		if !sub.live {
			continue
		}
		other := ev.Conversation.OtherParticipant(sub.userID)
		if other == "" {
			continue
		}
		if _, ok := sub.visible[other]; ok {
			continue
		}
		sub.visible[other] = struct{}{}
		fetch[other] = struct{}{}
	}
	for owner := range fetch {
		go h.fetchStory(owner)
	}
}

func (h *Hub) fetchStory(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	post, err := h.store.StoryFor(ctx, owner)
	if err != nil {
		if errs.CodeOf(err) != errs.CodeNotFound {
			h.logger.Error("fetch story failed", "owner", owner, "error", err)
		}
		return
	}
	if !post.Active(time.Now()) {
		return
	}
	ev := &model.Event{
		Kind:      model.EventStory,
		OwnerID:   owner,
		Story:     post,
		Timestamp: time.Now().UTC(),
	}
	// Run may have exited while the store call was in flight; nothing drains
	// h.events after that, so don't wait on it.
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Hub) send(sub *subscription, f *frame) bool {
	ok := h.sendTo(sub.client, f)
	if ok && f.Type == frameEvent {
		obs.EventsDelivered.WithLabelValues(string(f.Event.Kind)).Inc()
	}
	return ok
}

// sendTo writes a frame without blocking the hub. A client whose buffer is
// full is dropped; it reconnects and resubscribes for fresh snapshots rather
// than having diffs buffered for it. Once a client is dropped its send channel
// is closed, so delivery to a removed client is refused rather than attempted.
func (h *Hub) sendTo(client *Client, f *frame) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	payload, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("marshal frame failed", "error", err)
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		obs.SlowClientsDropped.Inc()
		h.logger.Warn("dropping slow client", "user", client.UserID)
		h.removeClient(context.Background(), client)
		return false
	}
}

func (h *Hub) removeClient(ctx context.Context, client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for _, sub := range client.subs {
		h.removeSub(sub)
	}
	close(client.send)
	obs.ActiveConnections.Dec()
	if err := h.presence.SetOffline(ctx, client.UserID); err != nil {
		h.logger.Error("set offline failed", "user", client.UserID, "error", err)
	}
}

// removeSub releases every registry entry a subscription holds. Nothing may
// outlive its owning connection.
func (h *Hub) removeSub(sub *subscription) {
	if sub.client.subs[sub.id] != sub {
		return
	}
	delete(sub.client.subs, sub.id)

	switch sub.kind {
	case SubMessages, SubTyping:
		if set, ok := h.byConversation[sub.conversationID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.byConversation, sub.conversationID)
			}
		}
	case SubConversations:
		if set, ok := h.byUser[sub.userID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.byUser, sub.userID)
			}
		}
	case SubStories:
		delete(h.storySubs, sub)
	}
	obs.ActiveSubscriptions.WithLabelValues(string(sub.kind)).Dec()
}
