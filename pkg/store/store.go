package store

import (
	"log/slog"
	"time"

	"github.com/mahaj/chat-sync/pkg/db"
	"github.com/mahaj/chat-sync/pkg/snowflake"
)

// Store owns all durable chat state in Scylla. It is the single source of
// truth; every cross-connection coordination point (conversation dedup,
// projection updates, idempotency tokens) is a conditional write or logged
// batch here, never an in-process lock.
type Store struct {
	session *db.Session
	node    *snowflake.Node
	logger  *slog.Logger
	now     func() time.Time
}

func New(session *db.Session, node *snowflake.Node, logger *slog.Logger) *Store {
	return &Store{
		session: session,
		node:    node,
		logger:  logger,
		now:     time.Now,
	}
}
