package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/chat-sync/pkg/bus"
	"github.com/mahaj/chat-sync/pkg/config"
	"github.com/mahaj/chat-sync/pkg/db"
	"github.com/mahaj/chat-sync/pkg/obs"
	"github.com/mahaj/chat-sync/pkg/snowflake"
	"github.com/mahaj/chat-sync/pkg/store"
)

const consumerGroup = "counters-service"

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

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("init snowflake node failed", "error", err)
		os.Exit(1)
	}
	st := store.New(session, node, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup, logger)
	defer consumer.Close()

	counters := NewCounters(st, logger)
	logger.Info("counters consumer starting", "group", consumerGroup)
	if err := consumer.Run(ctx, counters.Handle(ctx)); err != nil && ctx.Err() == nil {
		logger.Error("counters consumer stopped", "error", err)
		os.Exit(1)
	}
}
