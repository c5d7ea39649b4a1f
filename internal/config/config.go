package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr        string
	DatabaseURL string
	JWTSecret   string
	JWTAudience string
	Migrate     bool
}

type BotConfig struct {
	DatabaseURL string
	Token       string
	EventID     string
	Prefix      string
	// CommandRate is the sustained commands per second allowed per Discord
	// user; CommandBurst is the bucket size.
	CommandRate  float64
	CommandBurst int
}

type WorkerConfig struct {
	DatabaseURL    string
	ReconcileEvery time.Duration
	RunOnce        bool
}

type CLIConfig struct {
	APIBaseURL string
	JWTSecret  string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("HUNT_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:        addr,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:   strings.TrimSpace(os.Getenv("HUNT_JWT_SECRET")),
		JWTAudience: envDefault("HUNT_JWT_AUDIENCE", "authenticated"),
		Migrate:     envBoolDefault("HUNT_MIGRATE", true),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("HUNT_JWT_SECRET is required")
	}
	return cfg, nil
}

func LoadBotFromEnv() (BotConfig, error) {
	cfg := BotConfig{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Token:        strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		EventID:      strings.TrimSpace(os.Getenv("HUNT_EVENT_ID")),
		Prefix:       envDefault("HUNT_BOT_PREFIX", "!"),
		CommandRate:  envFloatDefault("HUNT_BOT_RATE", 0.5),
		CommandBurst: envIntDefault("HUNT_BOT_BURST", 3),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.EventID == "" {
		return cfg, fmt.Errorf("HUNT_EVENT_ID is required")
	}
	if cfg.CommandRate <= 0 || cfg.CommandBurst < 1 {
		return cfg, fmt.Errorf("HUNT_BOT_RATE and HUNT_BOT_BURST must be positive")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ReconcileEvery: envDurationDefault("HUNT_RECONCILE_EVERY", 5*time.Minute),
		RunOnce:        envBoolDefault("HUNT_WORKER_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ReconcileEvery < time.Second {
		return cfg, fmt.Errorf("HUNT_RECONCILE_EVERY must be at least 1s")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("HUNT_API_BASE_URL", "http://localhost:8080"), "/"),
		JWTSecret:  strings.TrimSpace(os.Getenv("HUNT_JWT_SECRET")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
