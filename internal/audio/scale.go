package audio

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// Method selects the time-compression strategy.
type Method string

const (
	// MethodOLA is windowed overlap-add: keeps pitch roughly, adds periodic
	// artifacts, mixes down to mono.
	MethodOLA Method = "ola"
	// MethodDecimate keeps every Nth frame: cheap, raises pitch by the factor.
	MethodDecimate Method = "decimate"
)

// OLA tuning. Quality only; the output length contract does not depend on it.
const (
	OLAWindow      = 0.030 // seconds
	OLANormEpsilon = 1e-5
)

// ParseMethod maps a config string to a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodOLA, "":
		return MethodOLA, nil
	case MethodDecimate:
		return MethodDecimate, nil
	default:
		return "", fmt.Errorf("audio: unknown scaling method %q", s)
	}
}

// TimeScale shortens b by factor. A factor of 1 or less returns b unchanged.
func TimeScale(b Buffer, factor float64, method Method) (Buffer, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return b, fmt.Errorf("audio: invalid scale factor %v", factor)
	}
	if factor <= 1 {
		return b, nil
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	switch method {
	case MethodDecimate:
		return decimate(b, factor), nil
	case MethodOLA:
		return overlapAdd(b, factor)
	default:
		return b, fmt.Errorf("audio: unknown scaling method %q", method)
	}
}

func decimate(b Buffer, factor float64) Buffer {
	frames := b.Frames()
	outFrames := int(float64(frames) / factor)
	if outFrames < 1 {
		outFrames = 1
	}
	out := make([]float32, 0, outFrames*b.Channels)
	for i := 0; i < outFrames; i++ {
		src := int(float64(i) * factor)
		if src >= frames {
			break
		}
		out = append(out, b.Samples[src*b.Channels:(src+1)*b.Channels]...)
	}
	return Buffer{Samples: out, SampleRate: b.SampleRate, Channels: b.Channels}
}

func overlapAdd(b Buffer, factor float64) (Buffer, error) {
	mono := b.Mono().Samples
	win := int(OLAWindow * float64(b.SampleRate))
	if win < 4 {
		return b, fmt.Errorf("audio: sample rate %d too low for ola", b.SampleRate)
	}
	if len(mono) < win {
		return b, fmt.Errorf("audio: %d frames shorter than ola window %d", len(mono), win)
	}
	synHop := win / 2
	anaHop := int(math.Round(float64(synHop) * factor))
	if anaHop <= synHop {
		anaHop = synHop + 1
	}

	window := hann(win)
	count := (len(mono)-win)/anaHop + 1
	outLen := (count-1)*synHop + win
	acc := make([]float64, outLen)
	norm := make([]float64, outLen)
	for f := 0; f < count; f++ {
		a := f * anaHop
		s := f * synHop
		for i := 0; i < win; i++ {
			acc[s+i] += float64(mono[a+i]) * window[i]
			norm[s+i] += window[i]
		}
	}
	out := make([]float32, outLen)
	for i := range acc {
		if norm[i] > OLANormEpsilon {
			out[i] = float32(acc[i] / norm[i])
		}
	}
	return Buffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}, nil
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Scaler applies the configured time compression and never fails the caller.
type Scaler struct {
	Enabled bool
	Factor  float64
	Method  Method
	Logger  *logrus.Logger
}

// Scale returns the compressed buffer, or b itself when scaling is off or
// anything goes wrong.
func (s *Scaler) Scale(b Buffer) (out Buffer) {
	if s == nil || !s.Enabled || s.Factor <= 1 {
		return b
	}
	defer func() {
		if r := recover(); r != nil {
			s.warnf("time scale panic, using original audio: %v", r)
			out = b
		}
	}()
	scaled, err := TimeScale(b, s.Factor, s.Method)
	if err != nil {
		s.warnf("time scale failed, using original audio: %v", err)
		return b
	}
	return scaled
}

func (s *Scaler) warnf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warnf(format, args...)
	}
}
