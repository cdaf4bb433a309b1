package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	platformstrings "avinilabs/pkg/platform/strings"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	TokenLifetime time.Duration
	DataDir       string
	LogLevel      slog.Level

	// Optional backends. Empty means "not configured": the file store,
	// in-memory notification queue, and in-process audit ring are used.
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Server config from environment variables.
// JWT_SECRET_KEY is required; everything else has a default.
func FromEnv() (Server, error) {
	addr := os.Getenv("AVINI_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return Server{}, errors.New("JWT_SECRET_KEY is required")
	}

	dataDir := os.Getenv("AVINI_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = platformstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "avini.audit"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtKey,
		TokenLifetime: 3600 * time.Second,
		DataDir:       dataDir,
		LogLevel:      parseLevel(os.Getenv("AVINI_LOG_LEVEL")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
	}, nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedisConfig holds tuning for the optional Redis notification sink.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig applies conservative defaults around a URL.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
