package store

import (
	"context"
	"errors"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/snowflake"
)

const defaultPageSize = 100

// AppendMessage appends to a conversation's log. The message insert, the
// conversation's lastMessage projection and both listing-index rows commit in
// one logged batch, so no reader can observe the log and the projection
// disagreeing.
//
// clientToken is an optional idempotency token: a retried append carrying the
// same token returns the originally committed message instead of duplicating
// it.
func (s *Store) AppendMessage(ctx context.Context, convID, senderID, content string, replyTo *model.MessageRef, clientToken string) (*model.Message, error) {
	if content == "" {
		return nil, errs.InvalidArg("message content is required")
	}

	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, errs.NotParticipant("sender is not a participant of this conversation")
	}

	id := s.node.Generate()
	ts := snowflake.Timestamp(id)

	if clientToken != "" {
		prev := map[string]interface{}{}
		applied, err := s.session.Query(
			`INSERT INTO message_tokens (conversation_id, token, message_id) VALUES (?, ?, ?) IF NOT EXISTS`,
			convID, clientToken, id,
		).WithContext(ctx).MapScanCAS(prev)
		if err != nil {
			return nil, errs.StoreUnavailable("register idempotency token", err)
		}
		if !applied {
			// Retry of an append that already committed.
			existing, _ := prev["message_id"].(int64)
			return s.GetMessage(ctx, convID, existing)
		}
	}

	var replyID int64
	var replySender, replyContent string
	if replyTo != nil {
		replyID, replySender, replyContent = replyTo.ID, replyTo.SenderID, replyTo.Content
	}

	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO messages (conversation_id, id, sender_id, content, read, timestamp, reply_id, reply_sender, reply_content) VALUES (?, ?, ?, ?, false, ?, ?, ?, ?)`,
		convID, id, senderID, content, ts, replyID, replySender, replyContent)
	b.Query(`UPDATE conversations SET last_id = ?, last_sender = ?, last_content = ?, last_time = ?, last_read = false WHERE conversation_id = ?`,
		id, senderID, content, ts, convID)
	b.Query(`UPDATE user_conversations SET last_updated = ? WHERE user_id = ? AND other_user_id = ?`, ts, conv.User1, conv.User2)
	b.Query(`UPDATE user_conversations SET last_updated = ? WHERE user_id = ? AND other_user_id = ?`, ts, conv.User2, conv.User1)
	if err := s.session.ExecuteBatch(b); err != nil {
		return nil, errs.StoreUnavailable("append message", err)
	}

	return &model.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Timestamp:      ts,
		ReplyTo:        replyTo,
	}, nil
}

func (s *Store) GetMessage(ctx context.Context, convID string, id int64) (*model.Message, error) {
	var (
		msg          model.Message
		replyID      int64
		replySender  string
		replyContent string
	)
	err := s.session.Query(
		`SELECT conversation_id, id, sender_id, content, read, timestamp, reply_id, reply_sender, reply_content FROM messages WHERE conversation_id = ? AND id = ?`,
		convID, id,
	).WithContext(ctx).Scan(&msg.ConversationID, &msg.ID, &msg.SenderID, &msg.Content, &msg.Read, &msg.Timestamp, &replyID, &replySender, &replyContent)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, errs.NotFound("message not found")
	}
	if err != nil {
		return nil, errs.StoreUnavailable("get message", err)
	}
	if replyID != 0 {
		msg.ReplyTo = &model.MessageRef{ID: replyID, SenderID: replySender, Content: replyContent}
	}
	return &msg, nil
}

// ListMessages returns the newest messages first (clustering order). Only
// participants may read the log.
func (s *Store) ListMessages(ctx context.Context, convID, viewerID string, limit int) ([]model.Message, error) {
	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(viewerID) {
		return nil, errs.NotParticipant("viewer is not a participant of this conversation")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	iter := s.session.Query(
		`SELECT conversation_id, id, sender_id, content, read, timestamp, reply_id, reply_sender, reply_content FROM messages WHERE conversation_id = ? LIMIT ?`,
		convID, limit,
	).WithContext(ctx).Iter()

	var out []model.Message
	var (
		msg          model.Message
		replyID      int64
		replySender  string
		replyContent string
	)
	for iter.Scan(&msg.ConversationID, &msg.ID, &msg.SenderID, &msg.Content, &msg.Read, &msg.Timestamp, &replyID, &replySender, &replyContent) {
		m := msg
		if replyID != 0 {
			m.ReplyTo = &model.MessageRef{ID: replyID, SenderID: replySender, Content: replyContent}
		}
		out = append(out, m)
		msg = model.Message{}
		replyID, replySender, replyContent = 0, "", ""
	}
	if err := iter.Close(); err != nil {
		return nil, errs.StoreUnavailable("list messages", err)
	}
	return out, nil
}

// MarkRead sets the read flag on a message. Only the non-sender participant
// may set it; marking an already-read message is a no-op. When the message is
// the conversation's last, the projection's read flag updates in the same
// batch.
func (s *Store) MarkRead(ctx context.Context, convID string, msgID int64, readerID string) (*model.Message, error) {
	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(readerID) {
		return nil, errs.NotParticipant("reader is not a participant of this conversation")
	}

	msg, err := s.GetMessage(ctx, convID, msgID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == readerID {
		return nil, errs.NotParticipant("sender cannot mark its own message read")
	}
	if msg.Read {
		return msg, nil
	}

	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`UPDATE messages SET read = true WHERE conversation_id = ? AND id = ?`, convID, msgID)
	if conv.LastMessage != nil && conv.LastMessage.ID == msgID {
		b.Query(`UPDATE conversations SET last_read = true WHERE conversation_id = ?`, convID)
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return nil, errs.StoreUnavailable("mark read", err)
	}

	msg.Read = true
	return msg, nil
}
