package main

import (
	"log"

	"github.com/mahaj/chat-sync/pkg/config"
	"github.com/mahaj/chat-sync/pkg/db"
)

// Drops every chat table. Destructive, local development only.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace, cfg.ScyllaTimeout)
	if err != nil {
		log.Fatalf("connect to scylla: %v", err)
	}
	defer session.Close()

	tables := []string{
		"users", "users_by_email",
		"conversations", "user_conversations",
		"messages", "message_tokens",
		"stories", "story_images",
		"conversation_counters",
	}
	for _, table := range tables {
		log.Printf("dropping table %s...", table)
		if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			log.Fatalf("drop %s: %v", table, err)
		}
	}
	log.Println("tables dropped")
}
