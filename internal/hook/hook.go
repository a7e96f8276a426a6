package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"voicecap/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// ErrNoCommand is returned by Run when hook.command is empty.
var ErrNoCommand = errors.New("no hook.command configured")

// Job represents a hook invocation request.
type Job struct {
	Text      string
	Timestamp time.Time
	Idea      bool
}

// Runner executes the post-delivery hook with cooldown and prefix handling.
type Runner struct {
	mu       sync.Mutex
	cfg      *config.Config
	logger   *logrus.Logger
	lastRun  time.Time
	hostname string
}

func NewRunner(cfg *config.Config, logger *logrus.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		hostname: host,
	}
}

// SetConfig swaps the config used by later runs.
func (r *Runner) SetConfig(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// Enabled reports whether a hook command is configured.
func (r *Runner) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.TrimSpace(r.cfg.Hook.Command) != ""
}

// Accepts reports whether text is long enough to trigger the hook.
func (r *Runner) Accepts(text string) bool {
	r.mu.Lock()
	minChars := r.cfg.Hook.MinChars
	r.mu.Unlock()
	return len([]rune(strings.TrimSpace(text))) >= minChars
}

// ShouldRun returns whether cooldown allows a new hook.
func (r *Runner) ShouldRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Hook.CooldownSec <= 0 {
		return true
	}
	return time.Since(r.lastRun).Seconds() >= r.cfg.Hook.CooldownSec
}

// Run executes the configured command with text payload.
func (r *Runner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.lastRun = time.Now()
	hk := r.cfg.Hook
	r.mu.Unlock()

	cmdStr := strings.TrimSpace(hk.Command)
	if cmdStr == "" {
		return ErrNoCommand
	}
	args := append([]string{}, hk.Args...)
	extra, err := ParseArgs(hk.ArgsLine)
	if err != nil {
		return fmt.Errorf("hook.args_line: %w", err)
	}
	args = append(args, extra...)

	prefix := strings.ReplaceAll(hk.Prefix, "${hostname}", r.hostname)
	text := job.Text
	if hk.RedactPII {
		text = redactPII(text)
	}
	payload := strings.TrimSpace(prefix + text)
	args = append(args, payload)

	runCtx := ctx
	if hk.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, config.Seconds(hk.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, cmdStr, args...)
	cmd.Env = os.Environ()
	for k, v := range hk.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		"VOICECAP_TEXT="+text,
		"VOICECAP_PREFIX="+prefix,
		"VOICECAP_TIMESTAMP="+job.Timestamp.Format(time.RFC3339),
		fmt.Sprintf("VOICECAP_IDEA=%t", job.Idea),
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs allows hook arguments to be configured as a single string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
