package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	LeaderboardLimit int
	OpenGamesLimit   int
}

// fileConfig mirrors AppConfig for the optional YAML overlay (ARENA_CONFIG).
// Environment variables always win over file values.
type fileConfig struct {
	ListenAddr       string `yaml:"listen_addr"`
	RedisURL         string `yaml:"redis_url"`
	DatabaseURL      string `yaml:"database_url"`
	LeaderboardLimit int    `yaml:"leaderboard_limit"`
	OpenGamesLimit   int    `yaml:"open_games_limit"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:       ":8080",
		LeaderboardLimit: 50,
		OpenGamesLimit:   50,
	}

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADERBOARD_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LeaderboardLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPEN_GAMES_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OpenGamesLimit = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if v := strings.TrimSpace(fc.ListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(fc.RedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(fc.DatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if fc.LeaderboardLimit > 0 {
		cfg.LeaderboardLimit = fc.LeaderboardLimit
	}
	if fc.OpenGamesLimit > 0 {
		cfg.OpenGamesLimit = fc.OpenGamesLimit
	}
	return nil
}
