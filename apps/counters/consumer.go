package main

import (
	"context"
	"log/slog"

	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/store"
)

// Counters applies unread-counter increments off the event bus. Counter
// columns cannot join the logged batch that commits a message, so this
// consumer trails the bus instead; the count is eventually consistent and
// reset synchronously when the reader marks the conversation read.
type Counters struct {
	store  *store.Store
	logger *slog.Logger
}

func NewCounters(st *store.Store, logger *slog.Logger) *Counters {
	return &Counters{store: st, logger: logger}
}

func (c *Counters) Handle(ctx context.Context) func(*model.Event) {
	return func(ev *model.Event) {
		if ev.Kind != model.EventMessageNew || ev.Message == nil {
			return
		}

		sender := ev.Message.SenderID
		recipient := ""
		for _, p := range ev.Participants {
			if p != sender {
				recipient = p
			}
		}
		if recipient == "" {
			c.logger.Warn("message event without recipient", "conversation", ev.ConversationID)
			return
		}

		if err := c.store.IncrementUnread(ctx, recipient, sender); err != nil {
			c.logger.Error("increment unread failed",
				"conversation", ev.ConversationID, "recipient", recipient, "error", err)
		}
	}
}
