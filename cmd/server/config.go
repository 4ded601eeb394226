package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"NAT_ENV" envDefault:"development"`

	// DatabaseURL is a postgres DSN, or sqlite:<path> for local runs.
	DatabaseURL string `env:"DATABASE_URL,required"`

	AuthSecret         string        `env:"AUTH_JWT_SECRET,required"`
	AuthURL            string        `env:"AUTH_URL" envDefault:"https://taverna.app"`
	TokenDuration      time.Duration `env:"AUTH_TOKEN_DURATION" envDefault:"24h"`
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`

	// RedisURL switches live events to redis pub/sub when set.
	RedisURL string `env:"REDIS_URL"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ChatPageMax    int      `env:"CHAT_PAGE_MAX" envDefault:"100"`
}

// IsDev is true outside production.
func (c Config) IsDev() bool {
	return c.Env != "production"
}

// loadDotEnv loads path if it exists. Variables already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func loadConfig() (Config, error) {
	var c Config
	if err := loadDotEnv(".env"); err != nil {
		return c, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	if c.ChatPageMax < 1 {
		c.ChatPageMax = 100
	}
	return c, nil
}
