package store

import (
	"context"
	"errors"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-sync/pkg/errs"
)

// IncrementUnread bumps the unread counter a recipient holds against a
// sender. Counters live outside the append batch (Scylla counters cannot join
// logged batches), so the counters consumer applies them from the event bus.
func (s *Store) IncrementUnread(ctx context.Context, userID, otherUserID string) error {
	err := s.session.Query(
		`UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`,
		userID, otherUserID,
	).WithContext(ctx).Exec()
	if err != nil {
		return errs.StoreUnavailable("increment unread", err)
	}
	return nil
}

// ResetUnread zeroes the counter. Deletion is how counter rows reset.
func (s *Store) ResetUnread(ctx context.Context, userID, otherUserID string) error {
	err := s.session.Query(
		`DELETE FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
		userID, otherUserID,
	).WithContext(ctx).Exec()
	if err != nil {
		return errs.StoreUnavailable("reset unread", err)
	}
	return nil
}

func (s *Store) UnreadCount(ctx context.Context, userID, otherUserID string) (int64, error) {
	var count int64
	err := s.session.Query(
		`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
		userID, otherUserID,
	).WithContext(ctx).Scan(&count)
	if errors.Is(err, gocql.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errs.StoreUnavailable("unread count", err)
	}
	return count, nil
}
