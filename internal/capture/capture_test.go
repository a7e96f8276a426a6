package capture

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	good := Config{SampleRate: 16000, Channels: 1, FrameMS: 20, VAD: true, Aggressiveness: 2}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := []Config{
		{SampleRate: 44100, Channels: 1, FrameMS: 20},
		{SampleRate: 16000, Channels: 0, FrameMS: 20},
		{SampleRate: 16000, Channels: 1, FrameMS: 25},
		{SampleRate: 16000, Channels: 1, FrameMS: 20, VAD: true, Aggressiveness: 4},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if got := good.FrameSamples(); got != 320 {
		t.Fatalf("FrameSamples = %d", got)
	}
}

func TestSpeechGate(t *testing.T) {
	g := speechGate{frame: 20 * time.Millisecond}
	for i := 0; i < 10; i++ {
		g.observe(i%2 == 0)
	}
	if err := g.check(200 * time.Millisecond); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if err := g.check(100 * time.Millisecond); err != nil {
		t.Fatalf("100ms of speech should pass: %v", err)
	}
	if err := g.check(0); err != nil {
		t.Fatalf("zero minimum always passes: %v", err)
	}
}

func TestPCMConversionAndMono(t *testing.T) {
	b := pcmToBuffer([]int16{-32768, 0, 16384, 32767}, 16000, 2)
	if b.Frames() != 2 || b.Samples[0] != -1 || b.Samples[2] != 0.5 {
		t.Fatalf("buffer = %+v", b)
	}
	m := mono16([]int16{100, 300, -50, 50}, 2, nil)
	if len(m) != 2 || m[0] != 200 || m[1] != 0 {
		t.Fatalf("mono = %v", m)
	}
}
