package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config groups settings per component so each one receives only its own
// section at wire-up time.
type Config struct {
	Server   Server
	Database Database
	Auth     Auth
	Storage  Storage
	Payments Payments
	Worker   Worker
	Events   Events
}

type Server struct {
	Addr           string
	AllowedOrigins []string
}

type Database struct {
	URL string
}

type Auth struct {
	JWTSecret string
}

type Storage struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Payments struct {
	ProviderURL    string
	KeyID          string
	KeySecret      string
	WebhookSecret  string
	CreditsPerUnit decimal.Decimal
	IntentTTL      time.Duration
}

type Worker struct {
	MaxWorkers        int
	CreditsPerTask    int64
	VisibilityTimeout time.Duration
	ReapInterval      time.Duration
}

type Events struct {
	Brokers []string
	Topic   string
}

// Load reads .env if present, then the environment. Only DATABASE_URL and
// JWT_SECRET are required; everything else has development defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: Server{
			Addr:           "0.0.0.0:" + envOr("PORT", "8080"),
			AllowedOrigins: splitList(envOr("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Database: Database{
			URL: os.Getenv("DATABASE_URL"),
		},
		Auth: Auth{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Storage: Storage{
			Endpoint:  envOr("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: envOr("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey: envOr("STORAGE_SECRET_KEY", "minioadmin"),
			Bucket:    envOr("STORAGE_BUCKET", "task-images"),
			UseSSL:    envBool("STORAGE_USE_SSL", false),
		},
		Payments: Payments{
			ProviderURL:   envOr("PAYMENT_PROVIDER_URL", "https://api.razorpay.com"),
			KeyID:         os.Getenv("PAYMENT_KEY_ID"),
			KeySecret:     os.Getenv("PAYMENT_KEY_SECRET"),
			WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
			IntentTTL:     envDuration("PAYMENT_INTENT_TTL", 24*time.Hour),
		},
		Worker: Worker{
			MaxWorkers:        envInt("WORKER_MAX_WORKERS", 10),
			CreditsPerTask:    int64(envInt("CREDITS_PER_TASK", 1)),
			VisibilityTimeout: envDuration("TASK_VISIBILITY_TIMEOUT", 5*time.Minute),
			ReapInterval:      envDuration("REAP_INTERVAL", time.Minute),
		},
		Events: Events{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "task-events"),
		},
	}

	cpu, err := decimal.NewFromString(envOr("CREDITS_PER_UNIT", "0.1"))
	if err != nil {
		return nil, fmt.Errorf("config: CREDITS_PER_UNIT: %w", err)
	}
	cfg.Payments.CreditsPerUnit = cpu

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	return cfg, nil
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
