package main

import (
	"context"
	"log"
	"time"

	"github.com/mahaj/chat-sync/pkg/config"
	"github.com/mahaj/chat-sync/pkg/db"
	"github.com/mahaj/chat-sync/pkg/store"
)

// Creates the chat keyspace and every table the services need. Local setup
// only; production schema belongs to migration tooling.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sysSession, err := db.NewSession(cfg.ScyllaHosts, "system", cfg.ScyllaTimeout)
	if err != nil {
		log.Fatalf("connect to system keyspace: %v", err)
	}
	if err := sysSession.Query(store.KeyspaceCQL).Exec(); err != nil {
		sysSession.Close()
		log.Fatalf("create keyspace: %v", err)
	}
	sysSession.Close()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace, cfg.ScyllaTimeout)
	if err != nil {
		log.Fatalf("connect to %s keyspace: %v", cfg.ScyllaKeyspace, err)
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx, session); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	log.Println("schema created")
}
