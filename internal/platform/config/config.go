// Package config builds the service configuration from environment variables
// so main stays lean. Every knob has a development default; production
// deployments override through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server    Server
	Postgres  Postgres
	Redis     Redis
	MinIO     MinIO
	Kafka     Kafka
	Cooldowns Cooldowns
	Geo       Geo
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres holds the database connection settings. An empty DSN selects the
// in-memory stores, which is the development and test default.
type Postgres struct {
	DSN string
}

// Redis holds the cooldown cache settings. An empty URL disables Redis and
// cooldowns fall back to the primary store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MinIO holds the proof-image bucket settings. An empty endpoint selects the
// in-memory image store.
type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Kafka holds the audit sink settings. Empty brokers disable the sink.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Cooldowns holds the per-kind base durations.
type Cooldowns struct {
	Join   time.Duration
	Random time.Duration
}

// Geo holds geofence evaluation knobs.
type Geo struct {
	// MaxAccuracyToleranceMeters caps how far a reported GPS accuracy can
	// widen a zone boundary.
	MaxAccuracyToleranceMeters float64
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("ZONEGATE_ADDR", ":8080"),
			JWTSigningKey: envOr("ZONEGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("ZONEGATE_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("ZONEGATE_REDIS_URL"),
			PoolSize:     envInt("ZONEGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ZONEGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("ZONEGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ZONEGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ZONEGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		MinIO: MinIO{
			Endpoint:  os.Getenv("ZONEGATE_MINIO_ENDPOINT"),
			AccessKey: os.Getenv("ZONEGATE_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("ZONEGATE_MINIO_SECRET_KEY"),
			Bucket:    envOr("ZONEGATE_MINIO_BUCKET", "zonegate-proofs"),
			UseSSL:    os.Getenv("ZONEGATE_MINIO_USE_SSL") == "true",
		},
		Kafka: Kafka{
			Brokers: envList("ZONEGATE_KAFKA_BROKERS"),
			Topic:   envOr("ZONEGATE_KAFKA_AUDIT_TOPIC", "zonegate.audit"),
		},
		Cooldowns: Cooldowns{
			Join:   envDuration("ZONEGATE_JOIN_COOLDOWN", 60*time.Second),
			Random: envDuration("ZONEGATE_RANDOM_COOLDOWN", 300*time.Second),
		},
		Geo: Geo{
			MaxAccuracyToleranceMeters: envFloat("ZONEGATE_MAX_ACCURACY_TOLERANCE_METERS", 50),
		},
	}
}

func envOr(key, fallback string) string {
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
