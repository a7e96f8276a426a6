// Package capture records microphone audio between Start and Stop.
package capture

import (
	"errors"
	"fmt"
	"time"

	"voicecap/internal/audio"
)

var (
	// ErrNoSpeech means the recording held less voiced audio than required.
	ErrNoSpeech = errors.New("capture: no speech detected")
	// ErrNotRecording is returned by Stop when Start was not called.
	ErrNotRecording = errors.New("capture: not recording")
	// ErrUnsupported is returned by builds without PortAudio.
	ErrUnsupported = errors.New("capture: built without microphone support (rebuild with -tags whisper)")
)

// Config selects the device and the speech gate.
type Config struct {
	DeviceName string
	SampleRate int
	Channels   int
	FrameMS    int

	VAD            bool
	Aggressiveness int
	MinSpeech      time.Duration
}

// Validate checks the values the VAD and PortAudio accept.
func (c Config) Validate() error {
	if c.Channels < 1 {
		return fmt.Errorf("audio.channels must be at least 1 (got %d)", c.Channels)
	}
	if c.FrameMS != 10 && c.FrameMS != 20 && c.FrameMS != 30 {
		return fmt.Errorf("audio.frame_ms must be 10, 20, or 30 (got %d)", c.FrameMS)
	}
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("audio.sample_rate must be 8k/16k/32k/48k for webrtc VAD (got %d)", c.SampleRate)
	}
	if c.VAD && (c.Aggressiveness < 0 || c.Aggressiveness > 3) {
		return fmt.Errorf("vad.aggressiveness must be 0-3 (got %d)", c.Aggressiveness)
	}
	return nil
}

// FrameSamples returns samples per channel in one frame.
func (c Config) FrameSamples() int {
	return c.SampleRate * c.FrameMS / 1000
}

// Device describes an input device.
type Device struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}

// Recorder is a push-to-talk capture session source.
type Recorder interface {
	Start() error
	// Stop ends the session and returns the buffer.
	Stop() (audio.Buffer, error)
	// Cancel ends the session and discards the audio.
	Cancel()
}

// Unavailable is the Recorder used when no microphone can be opened.
type Unavailable struct{}

func (Unavailable) Start() error                { return ErrUnsupported }
func (Unavailable) Stop() (audio.Buffer, error) { return audio.Buffer{}, ErrNotRecording }
func (Unavailable) Cancel()                     {}

// pcmToBuffer converts interleaved int16 PCM.
func pcmToBuffer(pcm []int16, rate, channels int) audio.Buffer {
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}
	return audio.Buffer{Samples: samples, SampleRate: rate, Channels: channels}
}

// speechGate accumulates voiced frame time.
type speechGate struct {
	frame  time.Duration
	voiced time.Duration
}

func (g *speechGate) observe(voice bool) {
	if voice {
		g.voiced += g.frame
	}
}

func (g *speechGate) check(min time.Duration) error {
	if min > 0 && g.voiced < min {
		return fmt.Errorf("%w (%s voiced, need %s)", ErrNoSpeech, g.voiced, min)
	}
	return nil
}

// mono16 averages one interleaved frame down to a single channel for the VAD.
func mono16(frame []int16, channels int, dst []int16) []int16 {
	if channels <= 1 {
		return frame
	}
	n := len(frame) / channels
	dst = dst[:0]
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(frame[i*channels+c])
		}
		dst = append(dst, int16(sum/int32(channels)))
	}
	return dst
}
