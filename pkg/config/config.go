package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by all chat-sync services, loaded from
// environment variables. A .env file in the working directory is honored
// when present.
type Config struct {
	Env string

	APIAddr     string
	GatewayAddr string

	ScyllaHosts    []string
	ScyllaKeyspace string
	ScyllaTimeout  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr string

	JWTSecret      string
	IdentitySecret string
	SessionTTL     time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioPublicURL string
	MinioUseSSL    bool

	SnowflakeNode int64
	JanitorCron   string
}

// Load parses environment variables into a Config struct.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:            getEnv("APP_ENV", "dev"),
		APIAddr:        getEnv("API_ADDR", ":8081"),
		GatewayAddr:    getEnv("GATEWAY_ADDR", ":8080"),
		ScyllaHosts:    splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost:9042")),
		ScyllaKeyspace: strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "chat")),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:19092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "chat-events"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-session-secret"),
		IdentitySecret: getEnv("IDENTITY_SECRET", "dev-identity-secret"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "chat-media"),
		MinioPublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		JanitorCron:    getEnv("JANITOR_CRON", "0 * * * *"),
	}

	if cfg.ScyllaKeyspace == "" {
		return Config{}, fmt.Errorf("SCYLLA_KEYSPACE is required")
	}
	if len(cfg.ScyllaHosts) == 0 {
		return Config{}, fmt.Errorf("SCYLLA_HOSTS is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required")
	}

	timeout, err := parseDuration("SCYLLA_TIMEOUT", "5s")
	if err != nil {
		return Config{}, err
	}
	cfg.ScyllaTimeout = timeout

	ttl, err := parseDuration("SESSION_TTL", "24h")
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL = ttl

	node := parseIntWithDefault(strings.TrimSpace(os.Getenv("SNOWFLAKE_NODE")), 1)
	if node < 0 || node > 1023 {
		return Config{}, fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023")
	}
	cfg.SnowflakeNode = int64(node)

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return dur, nil
}

func parseIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
