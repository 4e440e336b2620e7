// Package config builds runtime configuration from environment variables so
// main stays lean. Empty infrastructure URLs mean "use in-memory", which
// keeps local development dependency-free.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// Postgres captures the relational store configuration.
type Postgres struct {
	URL string
}

// Redis captures the shared cache / gate configuration.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the notification dispatch configuration.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Health captures the batch recompute configuration. Interval is the minimum
// spacing between effective runs; PollInterval is how often the worker offers
// one.
type Health struct {
	Interval     time.Duration
	PollInterval time.Duration
	Concurrency  int
}

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Health   Health
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("AEGIS_ADDR", ":8080"),
			JWTSigningKey: envOr("AEGIS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envOr("AEGIS_JWT_ISSUER", "aegis"),
			JWTAudience:   envOr("AEGIS_JWT_AUDIENCE", "aegis-api"),
		},
		Postgres: Postgres{
			URL: os.Getenv("AEGIS_POSTGRES_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("AEGIS_REDIS_URL"),
			PoolSize:     envIntOr("AEGIS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("AEGIS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("AEGIS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("AEGIS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("AEGIS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("AEGIS_KAFKA_BROKERS")),
			Topic:   envOr("AEGIS_KAFKA_TOPIC", "aegis.audit.events"),
		},
		Health: Health{
			Interval:     envDurationOr("AEGIS_HEALTH_INTERVAL", time.Hour),
			PollInterval: envDurationOr("AEGIS_HEALTH_POLL_INTERVAL", time.Minute),
			Concurrency:  envIntOr("AEGIS_HEALTH_CONCURRENCY", 8),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
