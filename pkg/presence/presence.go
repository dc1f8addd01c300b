// Package presence tracks the two ephemeral signals: who is typing in a
// conversation and who is online. Both are best-effort and last-write-wins;
// nothing here is durable or ordered beyond delivery order.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chat-sync/pkg/model"
)

const (
	typingPrefix = "typing:"
	onlineKey    = "online:users"

	// A typing flag that is never cleared decays on its own.
	typingTTL = 30 * time.Second
)

type Tracker struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewTracker(rdb *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{rdb: rdb, logger: logger}
}

// SetTyping records the latest typing flag and publishes it to every gateway.
// Last writer wins; drops under load are acceptable.
func (t *Tracker) SetTyping(ctx context.Context, st model.TypingState) error {
	key := typingPrefix + st.ConversationID
	if st.IsTyping {
		if err := t.rdb.HSet(ctx, key, st.UserID, "1").Err(); err != nil {
			return err
		}
		if err := t.rdb.Expire(ctx, key, typingTTL).Err(); err != nil {
			return err
		}
	} else {
		if err := t.rdb.HDel(ctx, key, st.UserID).Err(); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, key, payload).Err()
}

// TypingSnapshot returns the current typing flags for a conversation.
func (t *Tracker) TypingSnapshot(ctx context.Context, conversationID string) (map[string]bool, error) {
	fields, err := t.rdb.HGetAll(ctx, typingPrefix+conversationID).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(fields))
	for user := range fields {
		out[user] = true
	}
	return out, nil
}

// SubscribeTyping streams typing updates for all conversations. The returned
// cancel func releases the underlying pubsub subscription.
func (t *Tracker) SubscribeTyping(ctx context.Context) (<-chan model.TypingState, func(), error) {
	pubsub := t.rdb.PSubscribe(ctx, typingPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan model.TypingState, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var st model.TypingState
			if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
				t.logger.Error("decode typing update failed", "error", err)
				continue
			}
			select {
			case out <- st:
			default:
				// Best-effort channel, drop under load.
			}
		}
	}()

	cancel := func() { pubsub.Close() }
	return out, cancel, nil
}

// SetOnline marks a user as connected to some gateway instance.
func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	return t.rdb.SAdd(ctx, onlineKey, userID).Err()
}

func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	return t.rdb.SRem(ctx, onlineKey, userID).Err()
}

func (t *Tracker) OnlineUsers(ctx context.Context) ([]string, error) {
	return t.rdb.SMembers(ctx, onlineKey).Result()
}
