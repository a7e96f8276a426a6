//go:build whisper

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type whisperEngine struct {
	model   whisper.Model
	threads int
}

func openEngine(cfg LocalConfig) (Engine, error) {
	path := os.ExpandEnv(cfg.ModelPath)
	if _, err := os.Stat(path); err != nil {
		return nil, unavailable(Local, "model file missing", err)
	}
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &whisperEngine{model: model, threads: threads}, nil
}

func (w *whisperEngine) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return "", err
	}
	wctx.SetThreads(uint(w.threads))
	if lang := strings.TrimSpace(language); lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("set language %q: %w", lang, err)
		}
	}
	// Process has no cancellation hook; the caller's deadline is checked after.
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteByte(' ')
		}
	}
	return b.String(), nil
}

func (w *whisperEngine) Close() error {
	return w.model.Close()
}
