package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicecap/internal/config"

	"github.com/sirupsen/logrus"
)

func TestConfigureWritesJSONToLogPath(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "voicecap.log")
	cfg.Paths.TranscriptPath = filepath.Join(dir, "transcripts.log")
	cfg.Paths.HistoryPath = filepath.Join(dir, "history.db")
	cfg.Paths.RecoveryDir = filepath.Join(dir, "recovery")
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %s", logger.GetLevel())
	}
	logger.Info("dropped")
	logger.Warn("kept")

	data, err := os.ReadFile(cfg.Paths.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") || !strings.Contains(out, `"msg":"kept"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if _, err := os.Stat(cfg.Paths.RecoveryDir); err != nil {
		t.Fatalf("recovery dir not created: %v", err)
	}
}

func TestConfigureRejectsUnknownLevelAndFormat(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "voicecap.log")
	cfg.Paths.TranscriptPath = filepath.Join(dir, "transcripts.log")
	cfg.Paths.HistoryPath = filepath.Join(dir, "history.db")
	cfg.Paths.RecoveryDir = filepath.Join(dir, "recovery")

	cfg.Logging.Level = "loud"
	if _, err := Configure(cfg); err == nil {
		t.Fatalf("expected a level error")
	}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "xml"
	if _, err := Configure(cfg); err == nil {
		t.Fatalf("expected a format error")
	}
}
