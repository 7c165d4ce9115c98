package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	AuditTopic    string
	DownloadTTL   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SIGEDOC_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("SIGEDOC_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("SIGEDOC_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	topic := os.Getenv("SIGEDOC_AUDIT_TOPIC")

	downloadTTL := 5 * time.Minute
	if raw := os.Getenv("SIGEDOC_DOWNLOAD_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			downloadTTL = d
		}
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		DatabaseURL:   os.Getenv("SIGEDOC_DATABASE_URL"),
		RedisURL:      os.Getenv("SIGEDOC_REDIS_URL"),
		KafkaBrokers:  brokers,
		AuditTopic:    topic,
		DownloadTTL:   downloadTTL,
	}
}
