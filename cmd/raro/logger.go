package main

import (
	"fmt"
	"log/slog"
	"os"

	logger "github.com/raro-systems/raro/pkg/logging"
)

func parseLogLevel(s string) (slog.Level, error) {
	level, err := logger.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", s, err)
	}
	return level, nil
}

func initLogger(level slog.Level, format string) {
	logger.Init(level, os.Stderr, format)
}
