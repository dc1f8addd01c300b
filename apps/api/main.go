package main

import (
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chat-sync/pkg/auth"
	"github.com/mahaj/chat-sync/pkg/blob"
	"github.com/mahaj/chat-sync/pkg/bus"
	"github.com/mahaj/chat-sync/pkg/config"
	"github.com/mahaj/chat-sync/pkg/db"
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

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Error("init snowflake node failed", "error", err)
		os.Exit(1)
	}
	st := store.New(session, node, logger)

	producer := bus.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer producer.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	tracker := presence.NewTracker(rdb, logger)

	var uploader blob.Uploader = blob.NoopUploader{}
	if cfg.MinioEndpoint != "" {
		mu, err := blob.NewMinio(cfg.MinioEndpoint, cfg.MinioUseSSL, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicURL, logger)
		if err != nil {
			logger.Error("init object storage failed", "error", err)
			os.Exit(1)
		}
		uploader = mu
	}

	identity := auth.NewTokenIdentity(cfg.IdentitySecret)
	sessions := auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL)

	srv := NewServer(st, producer, tracker, uploader, identity, sessions, logger)

	logger.Info("api listening", "addr", cfg.APIAddr)
	if err := http.ListenAndServe(cfg.APIAddr, srv.Routes()); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
}
