package asr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"voicecap/internal/audio"
)

type stubRecognizer struct {
	model  string
	closed atomic.Bool
}

func (s *stubRecognizer) Transcribe(context.Context, audio.Buffer) (string, error) {
	return s.model, nil
}

func (s *stubRecognizer) Close() error {
	s.closed.Store(true)
	return nil
}

func countingFactory(builds *atomic.Int32) Factory {
	return func(b Backend, s Settings) (Recognizer, error) {
		builds.Add(1)
		switch b {
		case Groq:
			return &stubRecognizer{model: s.Groq.Model}, nil
		default:
			return nil, errors.New("no weights")
		}
	}
}

func TestRegistryCachesHandles(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(Settings{Groq: CloudConfig{Model: "v1"}}, countingFactory(&builds))

	a, releaseA, err := r.Get(Groq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	releaseA()
	b, releaseB, err := r.Get(Groq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	releaseB()
	if a != b || builds.Load() != 1 {
		t.Fatalf("expected one cached handle, builds=%d", builds.Load())
	}
}

func TestRegistryInvalidateRebuildsWithNewSnapshot(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(Settings{Groq: CloudConfig{Model: "v1"}}, countingFactory(&builds))

	old, release, err := r.Get(Groq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r.Invalidate(Settings{Groq: CloudConfig{Model: "v2"}})
	if r.Generation() != 1 {
		t.Fatalf("generation = %d", r.Generation())
	}

	// In-flight handle stays open until released.
	if old.(*stubRecognizer).closed.Load() {
		t.Fatalf("in-flight handle closed early")
	}
	text, _ := old.Transcribe(context.Background(), audio.Buffer{})
	if text != "v1" {
		t.Fatalf("old handle should keep old settings, got %q", text)
	}
	release()
	if !old.(*stubRecognizer).closed.Load() {
		t.Fatalf("retired handle not closed after release")
	}

	fresh, releaseFresh, err := r.Get(Groq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer releaseFresh()
	if text, _ := fresh.Transcribe(context.Background(), audio.Buffer{}); text != "v2" {
		t.Fatalf("new handle uses stale settings: %q", text)
	}
	if builds.Load() != 2 {
		t.Fatalf("builds = %d", builds.Load())
	}
}

func TestRegistryConstructionFailureIsUnavailable(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(Settings{}, countingFactory(&builds))
	_, _, err := r.Get(Local)
	if kind, _ := KindOf(err); kind != KindBackendUnavailable {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
	// Failures are not cached; the next call tries again.
	_, _, _ = r.Get(Local)
	if builds.Load() != 2 {
		t.Fatalf("builds = %d", builds.Load())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(Settings{}, countingFactory(&builds))
	rec, release, err := r.Get(Groq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, release2, _ := r.Get(Groq)
	release()
	release()
	r.Invalidate(Settings{})
	if rec.(*stubRecognizer).closed.Load() {
		t.Fatalf("closed while a borrower remains")
	}
	release2()
	if !rec.(*stubRecognizer).closed.Load() {
		t.Fatalf("expected close after last release")
	}
}
