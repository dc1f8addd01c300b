package store

import (
	"context"

	"github.com/mahaj/chat-sync/pkg/db"
	"github.com/mahaj/chat-sync/pkg/errs"
)

// KeyspaceCQL creates the chat keyspace. Run against the system keyspace.
const KeyspaceCQL = `CREATE KEYSPACE IF NOT EXISTS chat WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id text PRIMARY KEY,
		username text,
		avatar_url text,
		bio text,
		email text,
		created_at timestamp,
		updated_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS users_by_email (
		email text PRIMARY KEY,
		user_id text
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		conversation_id text PRIMARY KEY,
		user1 text,
		user2 text,
		created_at timestamp,
		last_id bigint,
		last_sender text,
		last_content text,
		last_time timestamp,
		last_read boolean
	)`,
	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		conversation_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		id bigint,
		sender_id text,
		content text,
		read boolean,
		timestamp timestamp,
		reply_id bigint,
		reply_sender text,
		reply_content text,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`,
	`CREATE TABLE IF NOT EXISTS message_tokens (
		conversation_id text,
		token text,
		message_id bigint,
		PRIMARY KEY (conversation_id, token)
	)`,
	`CREATE TABLE IF NOT EXISTS stories (
		owner_id text PRIMARY KEY,
		story_id text,
		updated_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS story_images (
		story_id text,
		added_at timestamp,
		url text,
		PRIMARY KEY (story_id, added_at, url)
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		other_user_id text,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`,
}

// EnsureSchema creates every table the store needs. Schema migration tooling
// should own this in production; the create_schema script uses it for local
// setups.
func EnsureSchema(ctx context.Context, session *db.Session) error {
	for _, stmt := range tables {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return errs.StoreUnavailable("create schema", err)
		}
	}
	return nil
}
