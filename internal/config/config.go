package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type APIConfig struct {
	Addr              string
	DatabaseURL       string
	SupabaseURL       string
	SupabaseAnonKey   string
	MetricsEnabled    bool
	CacheSize         int
	CacheTTL          time.Duration
	TxMaxAttempts     int
	DiscordWebhookURL string
}

type WorkerConfig struct {
	DatabaseURL       string
	ReconcileEvery    time.Duration
	ReconcileFix      bool
	ReconcileParallel int
	TxMaxAttempts     int
}

type CLIConfig struct {
	APIBaseURL string `toml:"api_base_url"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("GANGER_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:              addr,
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey:   strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		MetricsEnabled:    envBoolDefault("GANGER_METRICS_ENABLED", true),
		CacheSize:         envIntDefault("GANGER_CACHE_SIZE", 2048),
		CacheTTL:          envDurationDefault("GANGER_CACHE_TTL", time.Minute),
		TxMaxAttempts:     envIntDefault("GANGER_TX_MAX_ATTEMPTS", 8),
		DiscordWebhookURL: strings.TrimSpace(os.Getenv("GANGER_DISCORD_WEBHOOK_URL")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SupabaseURL == "" {
		return cfg, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ReconcileEvery:    envDurationDefault("GANGER_RECONCILE_EVERY", 15*time.Minute),
		ReconcileFix:      envBoolDefault("GANGER_RECONCILE_FIX", false),
		ReconcileParallel: envIntDefault("GANGER_RECONCILE_PARALLEL", 4),
		TxMaxAttempts:     envIntDefault("GANGER_TX_MAX_ATTEMPTS", 8),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ReconcileParallel < 1 {
		cfg.ReconcileParallel = 1
	}
	return cfg, nil
}

// LoadCLI reads ~/.gng/config.toml when present; GNG_API_BASE_URL wins over it.
func LoadCLI() (CLIConfig, error) {
	cfg := CLIConfig{APIBaseURL: "http://localhost:8080"}
	if path, err := cliConfigPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.APIBaseURL = strings.TrimRight(envDefault("GNG_API_BASE_URL", cfg.APIBaseURL), "/")
	return cfg, nil
}

func cliConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gng", "config.toml"), nil
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

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
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
