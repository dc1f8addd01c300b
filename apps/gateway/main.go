package main

import (
	"context"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chat-sync/pkg/auth"
	"github.com/mahaj/chat-sync/pkg/bus"
	"github.com/mahaj/chat-sync/pkg/config"
	"github.com/mahaj/chat-sync/pkg/db"
	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/obs"
	"github.com/mahaj/chat-sync/pkg/presence"
	"github.com/mahaj/chat-sync/pkg/snowflake"
	"github.com/mahaj/chat-sync/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace, cfg.ScyllaTimeout)
	if err != nil {
		logger.Error("connect to scylla failed", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	tracker := presence.NewTracker(rdb, logger)

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("init snowflake node failed", "error", err)
		os.Exit(1)
	}
	st := store.New(session, node, logger)
	sessions := auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(st, tracker, tracker, logger)
	go hub.Run(ctx)

	consumer := bus.NewFanoutConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer consumer.Close()
	go func() {
		if err := consumer.Run(ctx, hub.Dispatch); err != nil && ctx.Err() == nil {
			logger.Error("bus consumer stopped", "error", err)
		}
	}()

	typingCh, stopTyping, err := tracker.SubscribeTyping(ctx)
	if err != nil {
		logger.Error("subscribe typing failed", "error", err)
		os.Exit(1)
	}
	defer stopTyping()
	go func() {
		for ts := range typingCh {
			ts := ts
			hub.Dispatch(&model.Event{
				Kind:           model.EventTyping,
				ConversationID: ts.ConversationID,
				Typing:         &ts,
			})
		}
	}()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, sessions, tracker, logger, w, r)
	})
	http.Handle("/metrics", obs.MetricsHandler())

	logger.Info("gateway listening", "addr", cfg.GatewayAddr)
	if err := http.ListenAndServe(cfg.GatewayAddr, nil); err != nil {
		logger.Error("gateway server failed", "error", err)
		os.Exit(1)
	}
}
