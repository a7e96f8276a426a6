package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("VOICECAP_GROQ_API_KEY", "gsk_test")
	t.Setenv("VOICECAP_PRIMARY", "OpenAI")
	t.Setenv("VOICECAP_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("VOICECAP_LOG_LEVEL", "debug")
	t.Setenv("VOICECAP_LOG_FORMAT", "json")
	t.Setenv("VOICECAP_TRANSCRIPTS_ENABLED", "false")

	applyEnvOverrides(cfg)

	if cfg.Recognition.Groq.APIKey != "gsk_test" {
		t.Fatalf("groq key override failed: %q", cfg.Recognition.Groq.APIKey)
	}
	if cfg.Recognition.Primary != "openai" {
		t.Fatalf("primary should be lower-cased, got %q", cfg.Recognition.Primary)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if cfg.Transcripts.Enabled {
		t.Fatalf("transcripts should be disabled via env")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = path
	cfg.Hook.Command = "/bin/echo"
	cfg.Postprocess.Mode = "llm"
	cfg.Cascade.MaxAttempts = 3

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Hook.Command != "/bin/echo" {
		t.Fatalf("expected hook command to persist")
	}
	if loaded.Postprocess.Mode != "llm" || loaded.Cascade.MaxAttempts != 3 {
		t.Fatalf("postprocess/cascade not persisted: %+v %+v", loaded.Postprocess, loaded.Cascade)
	}
	if loaded.Paths.ConfigPath != path {
		t.Fatalf("config path not recorded: %q", loaded.Paths.ConfigPath)
	}
}

func TestLoadWritesTemplateWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template not written: %v", err)
	}
	if cfg.Cascade.MaxAttempts != 5 || cfg.BackendDelay() != time.Second || cfg.RoundDelay() != 2*time.Second {
		t.Fatalf("unexpected cascade defaults: %+v", cfg.Cascade)
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	env := "VOICECAP_OPENAI_API_KEY=sk-from-dotenv\nVOICECAP_GROQ_API_KEY=gsk-from-dotenv\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("VOICECAP_GROQ_API_KEY", "gsk-from-shell")
	t.Setenv("VOICECAP_OPENAI_API_KEY", "")
	_ = os.Unsetenv("VOICECAP_OPENAI_API_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Recognition.OpenAI.APIKey != "sk-from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.Recognition.OpenAI.APIKey)
	}
	if cfg.Recognition.Groq.APIKey != "gsk-from-shell" {
		t.Fatalf("shell env should win over .env, got %q", cfg.Recognition.Groq.APIKey)
	}
}

func TestRedactedMasksKeysOnly(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Recognition.Groq.APIKey = "gsk_abcdefghijkl"
	cfg.Recognition.OpenAI.APIKey = "short"
	red := cfg.Redacted()
	if red.Recognition.Groq.APIKey != "gsk_********ijkl" || red.Recognition.OpenAI.APIKey != "*****" {
		t.Fatalf("redacted = %q %q", red.Recognition.Groq.APIKey, red.Recognition.OpenAI.APIKey)
	}
	if cfg.Recognition.Groq.APIKey != "gsk_abcdefghijkl" {
		t.Fatalf("original was modified")
	}
	if red.Recognition.Groq.Model != cfg.Recognition.Groq.Model {
		t.Fatalf("other fields should be kept")
	}
}
