// Package logging builds the daemon logger and the size-rotated writers
// shared by the log files voicecap keeps.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"voicecap/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSizeMB  = 20
	logMaxBackups = 3
	logMaxAgeDays = 30
)

// Rotator returns an append-only writer that rotates path at maxSizeMB,
// keeping maxBackups old files. maxAgeDays <= 0 keeps them forever.
func Rotator(path string, maxSizeMB, maxBackups, maxAgeDays int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		LocalTime:  true,
	}
}

// Configure sets up logrus on the daemon log file. An unknown level is an
// error so a typo in the config does not silently hide debug output.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Logging.Level)))
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	switch strings.ToLower(cfg.Logging.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: !cfg.Logging.Stdout})
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q (want text or json)", cfg.Logging.Format)
	}

	var out io.Writer = Rotator(cfg.Paths.LogPath, logMaxSizeMB, logMaxBackups, logMaxAgeDays)
	if cfg.Logging.Stdout {
		out = io.MultiWriter(os.Stdout, out)
	}
	logger.SetOutput(out)
	return logger, nil
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
