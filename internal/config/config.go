package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // optional Postgres; SQLite is used when empty
	SQLitePath  string

	// Local account bootstrap
	Username    string
	Password    string
	DisplayName string

	// Peer directory: contact id -> host:port of its transport listener
	Peers map[string]string

	// Scripted responder
	GeminiAPIKey string
	GeminiModel  string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "9420"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		Username:    os.Getenv("POLYCHAT_USER"),
		Password:    os.Getenv("POLYCHAT_PASS"),
		DisplayName: os.Getenv("POLYCHAT_NAME"),
		Peers:       map[string]string{},

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	// Parse peer directory (comma-separated id=host:port pairs)
	if peers := os.Getenv("PEER_DIRECTORY"); peers != "" {
		for _, entry := range strings.Split(peers, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			id, addr, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			cfg.Peers[strings.TrimSpace(id)] = strings.TrimSpace(addr)
		}
	}

	// In production, require account credentials
	if cfg.Env == "production" {
		if cfg.Username == "" {
			panic("POLYCHAT_USER is required in production")
		}
		if cfg.Password == "" {
			panic("POLYCHAT_PASS is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
