package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicecap/internal/config"
	"voicecap/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	return cfg
}

func TestShouldRunCooldown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hook.Command = "/bin/echo"
	cfg.Hook.CooldownSec = 0.2
	r := NewRunner(cfg, logging.NewTestLogger())

	if !r.ShouldRun() {
		t.Fatalf("first call should run")
	}
	if err := r.Run(context.Background(), Job{Text: "test", Timestamp: time.Now()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.ShouldRun() {
		t.Fatalf("cooldown should block immediate subsequent run")
	}
	time.Sleep(config.Seconds(cfg.Hook.CooldownSec) + 20*time.Millisecond)
	if !r.ShouldRun() {
		t.Fatalf("should run after cooldown")
	}
}

func TestRunPassesPayloadAndEnv(t *testing.T) {
	cfg := testConfig(t)
	out := filepath.Join(t.TempDir(), "out.txt")
	cfg.Hook.Command = "/bin/sh"
	cfg.Hook.ArgsLine = `-c 'printf "%s|%s|%s" "$1" "$VOICECAP_TEXT" "$VOICECAP_IDEA" > ` + out + `' hook`
	cfg.Hook.Prefix = "pref: "
	cfg.Hook.RedactPII = true

	r := NewRunner(cfg, logging.NewTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Run(ctx, Job{Text: "mail me at a.b@example.com", Timestamp: time.Now(), Idea: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "pref: mail me at [redacted-email]|mail me at [redacted-email]|true"
	if string(data) != want {
		t.Fatalf("got %q want %q", data, want)
	}
}

func TestRunWithoutCommand(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, logging.NewTestLogger())
	if r.Enabled() {
		t.Fatalf("runner without command should be disabled")
	}
	if err := r.Run(context.Background(), Job{Text: "x"}); err != ErrNoCommand {
		t.Fatalf("err = %v", err)
	}
}

func TestAcceptsMinChars(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hook.MinChars = 4
	r := NewRunner(cfg, logging.NewTestLogger())
	if r.Accepts(" абв ") {
		t.Fatalf("three runes should be rejected")
	}
	if !r.Accepts("абвг") {
		t.Fatalf("four runes should be accepted")
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(`--flag "two words" x`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if strings.Join(args, ",") != "--flag,two words,x" {
		t.Fatalf("args = %q", args)
	}
}
