// Package logging configures the process-wide slog logger from service
// configuration, with an optional rotating file sink.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logPrefix = "logging:setup"

// Config is the optional logging section of the service file.
type Config struct {
	Path     string `yaml:"path"`
	Level    string `yaml:"level"`
	Rotation struct {
		MaxSizeMB   int `yaml:"maxSizeMB"`
		MaxAgeDays  int `yaml:"maxAgeDays"`
		BackupCount int `yaml:"backupCount"`
	} `yaml:"rotation"`
}

// Setup installs the default slog logger. Output always goes to stdout; when
// a path is configured it is additionally written to a size-rotated file.
func Setup(cfg Config) error {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stdout
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return fmt.Errorf("%s - create log directory for %s: %w", logPrefix, cfg.Path, err)
		}
		maxSize := cfg.Rotation.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			MaxBackups: cfg.Rotation.BackupCount,
		})
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}
