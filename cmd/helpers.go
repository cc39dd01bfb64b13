package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/recipebot/recipeapp/internal/config"
	"github.com/recipebot/recipeapp/internal/db"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `recipeapp init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger returns a text logger on stderr; --verbose lowers the level to debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openDatabase opens (creating if needed) a SQLite file under the data directory.
func openDatabase(cfg *config.Config, name string) (*db.DB, string, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, name)
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}
	return database, path, nil
}
