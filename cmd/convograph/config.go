package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all convograph configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath           string `json:"db_path"`
	LogLevel         string `json:"log_level"`
	Linter           string `json:"linter"` // expr or cel
	HistoryLimit     int    `json:"history_limit"`
	RetentionKeep    int    `json:"retention_keep"`
	RetentionMaxDays int    `json:"retention_max_days"`
	RetentionCron    string `json:"retention_cron"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(convographDir(), "flows.db"),
		LogLevel:         "info",
		Linter:           "expr",
		HistoryLimit:     100,
		RetentionKeep:    50,
		RetentionMaxDays: 30,
		RetentionCron:    "0 3 * * *",
	}
}

func convographDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".convograph"
	}
	return filepath.Join(home, ".convograph")
}

func settingsPath() string {
	return filepath.Join(convographDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CONVOGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CONVOGRAPH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CONVOGRAPH_LINTER"); v != "" {
		cfg.Linter = v
	}
	if v := os.Getenv("CONVOGRAPH_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("CONVOGRAPH_RETENTION_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionKeep = n
		}
	}
	if v := os.Getenv("CONVOGRAPH_RETENTION_MAX_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionMaxDays = n
		}
	}
	if v := os.Getenv("CONVOGRAPH_RETENTION_CRON"); v != "" {
		cfg.RetentionCron = v
	}

	return cfg
}
