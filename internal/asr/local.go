package asr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"voicecap/internal/audio"
)

// whisper.cpp expects 16 kHz mono float32.
const engineSampleRate = 16000

// DefaultLocalMaxDuration is the longest clip the local backend accepts.
const DefaultLocalMaxDuration = 25 * time.Second

// Engine runs local inference on 16 kHz mono samples.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)
	Close() error
}

// LocalConfig configures the whisper.cpp backend.
type LocalConfig struct {
	ModelPath   string
	Language    string
	Threads     int
	MaxDuration time.Duration
}

// LocalRecognizer wraps an Engine with the duration ceiling.
type LocalRecognizer struct {
	cfg    LocalConfig
	engine Engine
	mu     sync.Mutex // whisper contexts are not safe for concurrent use
}

// NewLocal loads the model. Loading failures are BackendUnavailable.
func NewLocal(cfg LocalConfig) (*LocalRecognizer, error) {
	engine, err := openEngine(cfg)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, unavailable(Local, "load model", err)
	}
	return newLocalWithEngine(cfg, engine), nil
}

func newLocalWithEngine(cfg LocalConfig, engine Engine) *LocalRecognizer {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultLocalMaxDuration
	}
	return &LocalRecognizer{cfg: cfg, engine: engine}
}

// Transcribe implements Recognizer. Clips over the ceiling are refused
// without running inference so the cascade moves on to a cloud backend.
func (l *LocalRecognizer) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if d := buf.Duration(); d > l.cfg.MaxDuration {
		return "", unavailable(Local, fmt.Sprintf("clip is %.1fs, local limit is %.0fs", d.Seconds(), l.cfg.MaxDuration.Seconds()), nil)
	}
	if err := buf.Validate(); err != nil {
		return "", &Error{Backend: Local, Kind: KindProtocol, Msg: "invalid audio", Err: err}
	}
	samples := buf.Resample(engineSampleRate).Samples

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := l.engine.Transcribe(ctx, samples, l.cfg.Language)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Backend: Local, Kind: KindServer, Msg: "inference", Err: err}
	}
	return strings.TrimSpace(text), nil
}

// Close releases the model.
func (l *LocalRecognizer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Close()
}

var _ Recognizer = (*LocalRecognizer)(nil)
