package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Zero values fall back to development defaults.
type Config struct {
	Addr          string
	JWTSigningKey string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig

	Cache    CacheConfig
	Identity IdentityConfig
	Switch   SwitchConfig
}

// RedisConfig controls the optional Redis persistent tier.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig controls the optional PostgreSQL persistent tier and the
// audit outbox.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig controls optional off-box audit shipping.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// CacheConfig bounds the tiered identity cache.
type CacheConfig struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

// IdentityConfig bounds the identity tree.
type IdentityConfig struct {
	MaxDepth int
	RootName string
}

// SwitchConfig bounds context propagation during a switch.
type SwitchConfig struct {
	AdapterTimeout time.Duration
}

// FromEnv builds a Config from environment variables with defaults suitable
// for local development.
func FromEnv() Config {
	return Config{
		Addr:          envString("PERSONA_ADDR", ":8080"),
		JWTSigningKey: envString("PERSONA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("PERSONA_REDIS_URL"),
			PoolSize:     envInt("PERSONA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("PERSONA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("PERSONA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("PERSONA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("PERSONA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("PERSONA_POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("PERSONA_KAFKA_BROKERS"),
			AuditTopic: envString("PERSONA_KAFKA_AUDIT_TOPIC", "persona.audit"),
		},
		Cache: CacheConfig{
			TTL:           envDuration("PERSONA_CACHE_TTL", 24*time.Hour),
			MaxEntries:    envInt("PERSONA_CACHE_MAX_ENTRIES", 100),
			SweepInterval: envDuration("PERSONA_CACHE_SWEEP_INTERVAL", time.Hour),
		},
		Identity: IdentityConfig{
			MaxDepth: envInt("PERSONA_IDENTITY_MAX_DEPTH", 5),
			RootName: envString("PERSONA_ROOT_IDENTITY_NAME", "primary"),
		},
		Switch: SwitchConfig{
			AdapterTimeout: envDuration("PERSONA_ADAPTER_TIMEOUT", 5*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
