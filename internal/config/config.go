// Package config loads the closed set of environment settings. A .env
// file is honoured in development; real environments set variables
// directly.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration. Secrets are never logged.
type Config struct {
	ListenAddr string

	// BotToken validates the Telegram handshake.
	BotToken string
	// AppSecret signs session tokens.
	AppSecret string

	// RedisAddr locates the room persistence store.
	RedisAddr string

	// DatabaseURL selects the postgres user directory. When empty,
	// SQLitePath selects the single-binary fallback.
	DatabaseURL string
	SQLitePath  string
}

// Load reads the environment, optionally overlaid by a .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("config: .env not loaded")
	}

	cfg := &Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		BotToken:    os.Getenv("BOT_TOKEN"),
		AppSecret:   os.Getenv("APP_SECRET"),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "durak.db"),
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("config: BOT_TOKEN is required")
	}
	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("config: APP_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
