package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mahaj/chat-sync/pkg/config"
	"github.com/mahaj/chat-sync/pkg/db"
	"github.com/mahaj/chat-sync/pkg/obs"
	"github.com/mahaj/chat-sync/pkg/snowflake"
	"github.com/mahaj/chat-sync/pkg/store"
)

// The janitor reclaims space held by expired story posts on a cron schedule.
// Reads never see expired posts regardless; this process only trims storage.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	if !gronx.IsValid(cfg.JanitorCron) {
		logger.Error("invalid janitor cron expression", "cron", cfg.JanitorCron)
		os.Exit(1)
	}

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

	logger.Info("janitor starting", "cron", cfg.JanitorCron)
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cfg.JanitorCron, now, false)
		if err != nil {
			logger.Error("compute next tick failed", "cron", cfg.JanitorCron, "error", err)
			next = now.Add(time.Minute)
		}

		select {
		case <-ctx.Done():
			logger.Info("janitor stopping")
			return
		case <-time.After(time.Until(next)):
		}

		purged, err := st.PurgeExpiredStories(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("purge expired stories failed", "error", err)
			continue
		}
		logger.Info("purge complete", "purged", purged)
	}
}
