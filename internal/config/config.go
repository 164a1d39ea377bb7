package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        int
	DatabaseURL string
	NatsURL     string
	NatsToken   string
	LogLevel    string
	APIToken    string
	CatalogPath string
	PageSize    int
}

func Load() Config {
	return Config{
		Port:        envInt("SCORED_PORT", 8760),
		DatabaseURL: envStr("DATABASE_URL", ""),
		NatsURL:     envStr("NATS_URL", "nats://nats:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("SCORED_API_TOKEN", ""),
		CatalogPath: envStr("CATALOG_PATH", ""),
		PageSize:    envInt("SCORED_PAGE_SIZE", 20),
	}
}

func envStr(key, fallback string) string {
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
