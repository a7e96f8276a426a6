// Package cascade runs recognition across the backends with bounded rounds
// and fixed delays until one backend produces text.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"voicecap/internal/asr"
	"voicecap/internal/audio"
)

const (
	DefaultMaxAttempts  = 5
	DefaultBackendDelay = 1 * time.Second
	DefaultRoundDelay   = 2 * time.Second
)

// ErrExhausted matches every *ExhaustedError.
var ErrExhausted = errors.New("all recognition attempts failed")

// Source hands out recognizers. *asr.Registry satisfies it.
type Source interface {
	Get(b asr.Backend) (asr.Recognizer, func(), error)
}

// Options tunes the retry loop.
type Options struct {
	MaxAttempts  int
	BackendDelay time.Duration
	RoundDelay   time.Duration
}

// DefaultOptions returns 5 rounds, 1s between backends and 2s between rounds.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  DefaultMaxAttempts,
		BackendDelay: DefaultBackendDelay,
		RoundDelay:   DefaultRoundDelay,
	}
}

// Attempt records one backend call.
type Attempt struct {
	Backend asr.Backend
	Round   int // 1-based
	Index   int // position within the round
	Err     error
	Elapsed time.Duration
}

// Result is a successful cascade run.
type Result struct {
	Text     string
	Backend  asr.Backend
	Attempts []Attempt
}

// ExhaustedError is returned when every round failed.
type ExhaustedError struct {
	Rounds   int
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("recognition failed after %d rounds (%d attempts): %v", e.Rounds, len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Cascade is safe for concurrent use.
type Cascade struct {
	src    Source
	opts   Options
	logger *logrus.Logger

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt, when set, observes every finished attempt.
	OnAttempt func(Attempt)
}

// New builds a cascade over src. Zero option fields take the defaults.
func New(src Source, opts Options, logger *logrus.Logger) *Cascade {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackendDelay < 0 {
		opts.BackendDelay = 0
	}
	if opts.RoundDelay < 0 {
		opts.RoundDelay = 0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Cascade{src: src, opts: opts, logger: logger, Sleep: sleepCtx}
}

// Options returns the effective options.
func (c *Cascade) Options() Options { return c.opts }

// Order returns primary followed by the remaining backends in canonical order.
func Order(primary asr.Backend) []asr.Backend {
	out := make([]asr.Backend, 0, len(asr.Canonical))
	known := false
	for _, b := range asr.Canonical {
		if b == primary {
			known = true
		}
	}
	if known {
		out = append(out, primary)
	}
	for _, b := range asr.Canonical {
		if b != primary {
			out = append(out, b)
		}
	}
	return out
}

// Run transcribes buf. It returns on the first success, which includes an
// empty transcript.
func (c *Cascade) Run(ctx context.Context, buf audio.Buffer, primary asr.Backend) (Result, error) {
	order := Order(primary)
	var attempts []Attempt
	var last error
	for round := 1; round <= c.opts.MaxAttempts; round++ {
		for i, b := range order {
			if err := ctx.Err(); err != nil {
				return Result{Attempts: attempts}, err
			}
			start := time.Now()
			text, err := c.attempt(ctx, b, buf)
			a := Attempt{Backend: b, Round: round, Index: i, Err: err, Elapsed: time.Since(start)}
			attempts = append(attempts, a)
			if c.OnAttempt != nil {
				c.OnAttempt(a)
			}
			if err == nil {
				if round > 1 || i > 0 {
					c.logger.Infof("cascade: %s succeeded (round %d, attempt %d)", b, round, len(attempts))
				}
				return Result{Text: text, Backend: b, Attempts: attempts}, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{Attempts: attempts}, ctxErr
			}
			last = err
			c.logger.WithFields(logrus.Fields{"backend": b, "round": round}).Warnf("cascade: %v", err)
			if i < len(order)-1 {
				if err := c.Sleep(ctx, c.opts.BackendDelay); err != nil {
					return Result{Attempts: attempts}, err
				}
			}
		}
		if round < c.opts.MaxAttempts {
			if err := c.Sleep(ctx, c.opts.RoundDelay); err != nil {
				return Result{Attempts: attempts}, err
			}
		}
	}
	return Result{Attempts: attempts}, &ExhaustedError{Rounds: c.opts.MaxAttempts, Attempts: attempts, Last: last}
}

func (c *Cascade) attempt(ctx context.Context, b asr.Backend, buf audio.Buffer) (string, error) {
	rec, release, err := c.src.Get(b)
	if err != nil {
		return "", err
	}
	defer release()
	return rec.Transcribe(ctx, buf)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
