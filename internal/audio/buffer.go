// Package audio holds the in-memory capture buffer and the transforms applied
// to it before recognition.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmpty is returned when a buffer carries no samples.
var ErrEmpty = errors.New("audio: empty buffer")

// Buffer is one finalized capture: interleaved float32 samples in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Validate checks the framing invariants.
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("audio: invalid channel count %d", b.Channels)
	}
	if len(b.Samples)%b.Channels != 0 {
		return fmt.Errorf("audio: %d samples do not divide into %d channels", len(b.Samples), b.Channels)
	}
	if len(b.Samples) == 0 {
		return ErrEmpty
	}
	return nil
}

// Frames returns the number of sample frames.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Seconds returns the buffer length in seconds.
func (b Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Duration returns the buffer length.
func (b Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Mono averages channels into a single-channel copy.
func (b Buffer) Mono() Buffer {
	if b.Channels <= 1 {
		out := make([]float32, len(b.Samples))
		copy(out, b.Samples)
		return Buffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}
	}
	frames := b.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[i*b.Channels+c]
		}
		out[i] = sum / float32(b.Channels)
	}
	return Buffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}
}

// Resample converts a mono buffer to rate using linear interpolation.
func (b Buffer) Resample(rate int) Buffer {
	m := b
	if b.Channels != 1 {
		m = b.Mono()
	}
	return Buffer{Samples: resampleLinear(m.Samples, m.SampleRate, rate), SampleRate: rate, Channels: 1}
}

func resampleLinear(in []float32, srcSR, dstSR int) []float32 {
	if srcSR == dstSR || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(dstSR) / float64(srcSR)
	outLen := int(float64(len(in))*ratio + 0.9999)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
