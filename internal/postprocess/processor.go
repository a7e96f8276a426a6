package postprocess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects how much work Process does after cleanup.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeSimple   Mode = "simple"
	ModeLLM      Mode = "llm"
)

// ParseMode maps a config value to a Mode; unknown values mean simple.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDisabled:
		return ModeDisabled
	case ModeLLM:
		return ModeLLM
	default:
		return ModeSimple
	}
}

// DefaultTimeout bounds one rewrite call.
const DefaultTimeout = 8 * time.Second

// Settings configures a Processor.
type Settings struct {
	Enabled      bool
	Mode         Mode
	SystemPrompt string
	Endpoint     string // chat/completions URL
	APIKey       string
	Model        string
	Timeout      time.Duration
}

// Result is the outcome of Process. Final is never empty unless Cleaned is.
type Result struct {
	Cleaned   string
	Final     string
	Rewritten bool
	Notice    string
}

// Processor applies cleanup and the optional LLM rewrite.
type Processor struct {
	settings Settings
	rewriter Rewriter
	logger   *logrus.Logger
}

// New returns a Processor. rw may be nil, in which case the llm mode degrades
// to cleanup only.
func New(s Settings, rw Rewriter, logger *logrus.Logger) *Processor {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Processor{settings: s, rewriter: rw, logger: logger}
}

// Settings returns the processor's configuration.
func (p *Processor) Settings() Settings { return p.settings }

// Process never fails: any problem in the rewrite step yields the cleaned
// text and a notice.
func (p *Processor) Process(ctx context.Context, raw string) (res Result) {
	res.Cleaned = Cleanup(raw)
	res.Final = res.Cleaned
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("postprocess panic: %v", r)
			res = Result{Cleaned: res.Cleaned, Final: res.Cleaned, Notice: "Text processing failed, using the cleaned transcript"}
		}
	}()

	if !p.settings.Enabled || p.settings.Mode != ModeLLM || res.Cleaned == "" {
		return res
	}
	if strings.TrimSpace(p.settings.APIKey) == "" || p.rewriter == nil {
		p.logger.Debugf("postprocess: no api key for llm rewrite, skipping")
		return res
	}

	prompt := p.settings.SystemPrompt
	start := time.Now()
	out, err := p.rewriter.Rewrite(ctx, prompt, res.Cleaned)
	if err != nil {
		p.logger.WithField("elapsed", time.Since(start)).Warnf("postprocess: %v", err)
		res.Notice = noticeFor(err)
		return res
	}
	out = strings.TrimSpace(out)
	if out == "" {
		p.logger.Warnf("postprocess: empty llm reply")
		res.Notice = "Text processing returned nothing, using the cleaned transcript"
		return res
	}
	res.Final = out
	res.Rewritten = true
	return res
}

func noticeFor(err error) string {
	var le *LLMError
	if !errors.As(err, &le) {
		return fmt.Sprintf("Text processing failed (%v), using the cleaned transcript", err)
	}
	switch le.Kind {
	case LLMTimeout:
		return "Text processing timed out, using the cleaned transcript"
	case LLMAuth:
		return "Text processing rejected the API key, using the cleaned transcript"
	case LLMRateLimited:
		return "Text processing is rate limited, using the cleaned transcript"
	case LLMNetwork:
		return "Text processing is unreachable, using the cleaned transcript"
	default:
		return "Text processing failed, using the cleaned transcript"
	}
}
