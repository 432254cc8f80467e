// Package config loads settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration, filled from the environment.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string `env:"DB_PATH" envDefault:"data/studentparent.db"`

	RedisAddr     string `env:"REDIS_ADDR"` // empty disables Redis
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"8"`

	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	TransformsFile string `env:"TRANSFORMS_FILE"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	SeedData       bool   `env:"SEED_DATA" envDefault:"true"`

	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080"`

	AdminPhone    string `env:"ADMIN_PHONE"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Load reads the given .env files (".env" when none), then the environment.
// Variables already set take precedence over file values. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.AdminPhone != "" && cfg.AdminPassword == "" {
		return nil, errors.New("ADMIN_PASSWORD is required when ADMIN_PHONE is set")
	}
	return cfg, nil
}

// NewLogger returns a logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}
