package store

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

// FindOrCreateConversation returns the conversation for an unordered pair,
// creating it when absent. The deterministic key plus a conditional insert
// serializes concurrent creation by either participant: the loser's insert is
// not applied and it reads the winner's row instead. Idempotent, safe to
// retry blindly.
func (s *Store) FindOrCreateConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	if a == "" || b == "" {
		return nil, errs.InvalidArg("both participants are required")
	}
	if a == b {
		return nil, errs.InvalidArg("a conversation needs two distinct participants")
	}

	u1, u2 := a, b
	if u2 < u1 {
		u1, u2 = u2, u1
	}
	key := model.ConversationKey(a, b)
	now := s.now().UTC()

	prev := map[string]interface{}{}
	applied, err := s.session.Query(
		`INSERT INTO conversations (conversation_id, user1, user2, created_at, last_id, last_read) VALUES (?, ?, ?, ?, 0, false) IF NOT EXISTS`,
		key, u1, u2, now,
	).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return nil, errs.StoreUnavailable("create conversation", err)
	}

	// The listing index is written on every call, not just for the winner of
	// the LWT. The inserts are idempotent upserts, and a retry after a crash
	// between the conditional insert and the index batch lands on the
	// not-applied path; skipping the index there would leave the conversation
	// invisible to both participants' listings forever.
	b2 := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b2.Query(`INSERT INTO user_conversations (user_id, other_user_id, conversation_id) VALUES (?, ?, ?)`, u1, u2, key)
	b2.Query(`INSERT INTO user_conversations (user_id, other_user_id, conversation_id) VALUES (?, ?, ?)`, u2, u1, key)
	if err := s.session.ExecuteBatch(b2); err != nil {
		return nil, errs.StoreUnavailable("index conversation", err)
	}

	if !applied {
		return s.GetConversation(ctx, key)
	}
	return &model.Conversation{ConversationID: key, User1: u1, User2: u2, CreatedAt: now}, nil
}

// GetConversation loads a conversation with its lastMessage projection.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var (
		c           model.Conversation
		lastID      int64
		lastSender  string
		lastContent string
		lastTime    time.Time
		lastRead    bool
	)
	err := s.session.Query(
		`SELECT conversation_id, user1, user2, created_at, last_id, last_sender, last_content, last_time, last_read FROM conversations WHERE conversation_id = ?`,
		id,
	).WithContext(ctx).Scan(&c.ConversationID, &c.User1, &c.User2, &c.CreatedAt, &lastID, &lastSender, &lastContent, &lastTime, &lastRead)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, errs.InvalidConversation("conversation does not exist")
	}
	if err != nil {
		return nil, errs.StoreUnavailable("get conversation", err)
	}

	if lastID != 0 {
		c.LastMessage = &model.Message{
			ID:             lastID,
			ConversationID: c.ConversationID,
			SenderID:       lastSender,
			Content:        lastContent,
			Read:           lastRead,
			Timestamp:      lastTime,
		}
	}
	return &c, nil
}

// ListConversations returns every conversation the user participates in,
// most recent last message first, empty conversations last.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return nil, errs.InvalidArg("user id is required")
	}

	iter := s.session.Query(`SELECT conversation_id FROM user_conversations WHERE user_id = ?`, userID).
		WithContext(ctx).
		Iter()
	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, errs.StoreUnavailable("list conversations", err)
	}

	out := make([]model.Conversation, 0, len(ids))
	for _, cid := range ids {
		conv, err := s.GetConversation(ctx, cid)
		if err != nil {
			if errs.CodeOf(err) == errs.CodeInvalidConversation {
				continue
			}
			return nil, err
		}
		out = append(out, *conv)
	}
	model.SortConversations(out)
	return out, nil
}

// Partners returns the users sharing a conversation with userID. Drives
// story visibility.
func (s *Store) Partners(ctx context.Context, userID string) ([]string, error) {
	iter := s.session.Query(`SELECT other_user_id FROM user_conversations WHERE user_id = ?`, userID).
		WithContext(ctx).
		Iter()
	var partners []string
	var other string
	for iter.Scan(&other) {
		partners = append(partners, other)
	}
	if err := iter.Close(); err != nil {
		return nil, errs.StoreUnavailable("list partners", err)
	}
	return partners, nil
}
