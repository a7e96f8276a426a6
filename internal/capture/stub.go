//go:build !whisper

package capture

import (
	"github.com/sirupsen/logrus"

	"voicecap/internal/audio"
)

// Mic is a placeholder for builds without PortAudio.
type Mic struct{}

// New always fails without the whisper build tag.
func New(cfg Config, _ *logrus.Logger) (*Mic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

func (m *Mic) Close() error                { return nil }
func (m *Mic) Start() error                { return ErrUnsupported }
func (m *Mic) Stop() (audio.Buffer, error) { return audio.Buffer{}, ErrNotRecording }
func (m *Mic) Cancel()                     {}

// Devices is unavailable without PortAudio.
func Devices() ([]Device, error) {
	return nil, ErrUnsupported
}

var _ Recorder = (*Mic)(nil)
