package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Client configures the storefront client (CLI and SDK wiring).
type Client struct {
	APIURL          string        `envconfig:"STOREFRONT_API_URL" required:"true"`
	Timeout         time.Duration `envconfig:"STOREFRONT_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `envconfig:"STOREFRONT_REFRESH_INTERVAL" default:"50m"`

	// TokenStore is one of memory, sqlite, redis.
	TokenStore    string `envconfig:"STOREFRONT_TOKEN_STORE" default:"sqlite"`
	TokenDSN      string `envconfig:"STOREFRONT_TOKEN_DSN" default:"storefront-credentials.db"`
	RedisAddr     string `envconfig:"STOREFRONT_REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	Profile       string `envconfig:"STOREFRONT_PROFILE" default:"default"`

	LogLevel string `envconfig:"STOREFRONT_LOG_LEVEL" default:"warn"`
}

// Sandbox configures the local reference backend.
type Sandbox struct {
	Addr        string `envconfig:"SANDBOX_ADDR" default:":8000"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:"sandbox.db"`

	JWTSecret        string        `envconfig:"JWT_SECRET"`
	JWTRefreshSecret string        `envconfig:"JWT_REFRESH_SECRET"`
	AccessTTL        time.Duration `envconfig:"ACCESS_TTL" default:"15m"`
	RefreshTTL       time.Duration `envconfig:"REFRESH_TTL" default:"168h"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`

	ESURL      string `envconfig:"ES_URL"`
	ESUser     string `envconfig:"ES_USER"`
	ESPassword string `envconfig:"ES_PASSWORD"`
	ESIndex    string `envconfig:"ES_INDEX" default:"product"`

	Seed     bool   `envconfig:"SANDBOX_SEED" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func loadDotEnv() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}
}

func LoadClient() (Client, error) {
	loadDotEnv()

	var cfg Client
	if err := envconfig.Process("", &cfg); err != nil {
		return Client{}, fmt.Errorf("client config: %w", err)
	}
	if err := RequireNonEmpty(map[string]string{"STOREFRONT_API_URL": cfg.APIURL}); err != nil {
		return Client{}, fmt.Errorf("client config: %w", err)
	}
	switch cfg.TokenStore {
	case "memory", "sqlite", "redis":
	default:
		return Client{}, fmt.Errorf("client config: unknown token store %q", cfg.TokenStore)
	}
	return cfg, nil
}

func LoadSandbox() (Sandbox, error) {
	loadDotEnv()

	var cfg Sandbox
	if err := envconfig.Process("", &cfg); err != nil {
		return Sandbox{}, fmt.Errorf("sandbox config: %w", err)
	}
	if err := RequireNonEmpty(map[string]string{
		"JWT_SECRET":         cfg.JWTSecret,
		"JWT_REFRESH_SECRET": cfg.JWTRefreshSecret,
	}); err != nil {
		return Sandbox{}, fmt.Errorf("sandbox config: %w", err)
	}
	return cfg, nil
}
